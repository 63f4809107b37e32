// Package paths centralizes file and directory names used across the project.
// Every path the patcher touches is derived from the install directory here,
// so the rest of the code never joins path fragments by hand.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Install directory layout.
const (
	ResourcesDir        = "resources"
	TempDir             = "temp"
	AppArchiveName      = "app.asar"
	DynalistArchiveName = "dynalist.asar"
	BackupSuffix        = "backup"
	LockFile            = "dynapatch.lock"
	ConfigFile          = "dynapatch.toml"
	LogFile             = "dynapatch.log"
)

// Files patched inside the extracted archives, slash-separated and relative
// to the archive root.
const (
	AppScript      = "index.js"
	DynalistScript = "www/assets/js/main.min.js"
)

// Scratch directory names under [TempDir].
const (
	AppScratchDir      = "app"
	DynalistScratchDir = "dynalist"
)

// BackupName returns the backup file name for an archive path.
// For example, BackupName("app.asar") returns "app.asarbackup".
func BackupName(archive string) string {
	return archive + BackupSuffix
}

// ///////////////////////////////////////////////
// Layout
// ///////////////////////////////////////////////

// Layout holds every path derived from a Dynalist install directory. It is
// computed once by [NewLayout] and passed by value; nothing mutates it.
type Layout struct {
	// Root is the install directory given on the command line.
	Root string
	// Resources is the directory holding both archives.
	Resources string
	// Temp is the parent of the scratch extraction directories.
	Temp string

	AppArchive      string
	DynalistArchive string
	AppBackup       string
	DynalistBackup  string
	AppScratch      string
	DynalistScratch string

	// Lock is the run lock that keeps two patcher processes apart.
	Lock string
	// Config is the default location of the optional TOML config.
	Config string
}

// NewLayout derives the full [Layout] from the install directory root.
func NewLayout(root string) Layout {
	res := filepath.Join(root, ResourcesDir)
	tmp := filepath.Join(res, TempDir)
	app := filepath.Join(res, AppArchiveName)
	dyn := filepath.Join(res, DynalistArchiveName)
	return Layout{
		Root:            root,
		Resources:       res,
		Temp:            tmp,
		AppArchive:      app,
		DynalistArchive: dyn,
		AppBackup:       BackupName(app),
		DynalistBackup:  BackupName(dyn),
		AppScratch:      filepath.Join(tmp, AppScratchDir),
		DynalistScratch: filepath.Join(tmp, DynalistScratchDir),
		Lock:            filepath.Join(tmp, LockFile),
		Config:          filepath.Join(res, ConfigFile),
	}
}

// InScratch joins a slash-separated archive-relative path onto a scratch
// directory.
func InScratch(scratch, rel string) string {
	return filepath.Join(scratch, filepath.FromSlash(rel))
}
