// Package misc keeps build time information about the program.
package misc

// Values are expected to be set by the linker, see Taskfile.
var (
	appName = "wsi"
	version = "dev"
	gitHash = "unknown"
)

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return gitHash
}
