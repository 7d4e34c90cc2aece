package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/secretguard/internal/binary"
)

var binaryCmd = &cobra.Command{
	Use:   "binary",
	Short: "Locate, install and verify the secret_scanner binary",
}

var binaryResolveCmd = &cobra.Command{
	Use:   "resolve [dir]",
	Short: "Show which scanner binary a scan of dir would use",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")
		cfg := appConfig
		if err := validConfig(cfg); err != nil {
			return err
		}

		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		root, err := filepath.Abs(root)
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}

		resolver, err := newResolver(cfg)
		if err != nil {
			return err
		}
		res, err := resolver.Resolve(cmd.Context(), root, stderrHooks(cmd, quiet))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.ExecutablePath, res.Origin)
		return nil
	},
}

var binaryInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Download, verify and install the prebuilt scanner for this platform",
	Long: `Install downloads the prebuilt scanner, verifies its pinned SHA-256 and
installs it into the cache (and the global bin dir when enabled).

With --platform set to another OS the verified artifact is only written to
<storage.dir>/secret_scanner-<platform>; it is never installed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		quiet, _ := cmd.Flags().GetBool("quiet")
		cfg := appConfig
		if err := validConfig(cfg); err != nil {
			return err
		}
		if platform == "" {
			platform = binary.CurrentPlatform()
		}

		res, err := newProvisioner(cfg).Provision(cmd.Context(), platform, stderrHooks(cmd, quiet))
		if err != nil {
			return err
		}
		if platform != binary.CurrentPlatform() {
			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s binary to %s (not installed)\n", platform, res.ExecutablePath)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", res.ExecutablePath)
		return nil
	},
}

var binaryVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Check a scanner binary against the pinned SHA-256 for a platform",
	Long: `Verify compares the file's SHA-256 digest with the checksum pinned for
the platform. Unlike provisioning, a mismatch here only reports; the file
is left in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, _ := cmd.Flags().GetString("platform")
		if platform == "" {
			platform = binary.CurrentPlatform()
		}
		desc, ok := appConfig.Platforms.Lookup(platform)
		if !ok {
			return fmt.Errorf("%w (platform %s)", binary.ErrPlatformUnsupported, platform)
		}

		digest, err := binary.FileDigest(args[0])
		if err != nil {
			return err
		}
		if !strings.EqualFold(digest, desc.ExpectedChecksum) {
			fmt.Fprintf(cmd.OutOrStdout(), "MISMATCH %s\n  expected %s\n  actual   %s\n", args[0], desc.ExpectedChecksum, digest)
			return fmt.Errorf("checksum mismatch for %s", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s\n", digest, args[0])
		return nil
	},
}

var binaryPlatformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List platforms with a prebuilt scanner download",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := make([]string, 0, len(appConfig.Platforms))
		for k := range appConfig.Platforms {
			if _, ok := appConfig.Platforms.Lookup(k); ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PLATFORM\tARTIFACT\tSHA256\tURL")
		for _, k := range keys {
			d, _ := appConfig.Platforms.Lookup(k)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", k, d.Name, shortHash(d.ExpectedChecksum), d.DownloadURL)
		}
		return w.Flush()
	},
}

func shortHash(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

func init() {
	binaryResolveCmd.Flags().BoolP("quiet", "q", false, "Suppress progress lines")
	binaryInstallCmd.Flags().String("platform", "", "Platform key (defaults to the running OS)")
	binaryInstallCmd.Flags().BoolP("quiet", "q", false, "Suppress progress lines")
	binaryVerifyCmd.Flags().String("platform", "", "Platform key (defaults to the running OS)")

	binaryCmd.AddCommand(binaryResolveCmd)
	binaryCmd.AddCommand(binaryInstallCmd)
	binaryCmd.AddCommand(binaryVerifyCmd)
	binaryCmd.AddCommand(binaryPlatformsCmd)
}
