package common

// File permission constants shared by the config store, logs and the working directory.
const (
	// FilePermissionSecure is used for the sync record and anything holding a credential
	FilePermissionSecure = 0600

	// FilePermissionNormal is used for log files
	FilePermissionNormal = 0644

	// DirPermissionSecure is used for the config directory
	DirPermissionSecure = 0700

	// DirPermissionNormal is used for the working directory
	DirPermissionNormal = 0755
)
