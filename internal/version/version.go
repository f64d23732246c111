package version

// Version is the application version, overridable at build time with
// -ldflags "-X otonote/internal/version.Version=...".
var Version = "0.1.0"
