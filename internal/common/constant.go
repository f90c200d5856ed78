package common

// DefaultAppPrefix namespaces local cache keys.
const DefaultAppPrefix = "carekeeper"

// DefaultBackupRootFolder is the fixed name of the root folder on the backup provider.
const DefaultBackupRootFolder = "CareKeeper Backup"

// SchemaVersion is stamped on every envelope written by this build.
const SchemaVersion = 1
