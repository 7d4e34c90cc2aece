package binary

// Origin records which strategy produced a binary.
type Origin string

const (
	OriginPath           Origin = "path"
	OriginGlobalInstall  Origin = "global-install"
	OriginWorkspaceBuild Origin = "workspace-build"
	OriginLocalCache     Origin = "local-cache"
	OriginFreshDownload  Origin = "fresh-download"
)

// Resolved is a runnable scanner executable and how it was found.
type Resolved struct {
	ExecutablePath string `json:"executable_path"`
	Origin         Origin `json:"origin"`
}
