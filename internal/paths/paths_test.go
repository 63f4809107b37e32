package paths

import (
	"path/filepath"
	"testing"
)

// ///////////////////////////////////////////////
// Constant Value Tests
// ///////////////////////////////////////////////

func TestConstantValues(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ResourcesDir", ResourcesDir, "resources"},
		{"TempDir", TempDir, "temp"},
		{"AppArchiveName", AppArchiveName, "app.asar"},
		{"DynalistArchiveName", DynalistArchiveName, "dynalist.asar"},
		{"BackupSuffix", BackupSuffix, "backup"},
		{"AppScript", AppScript, "index.js"},
		{"DynalistScript", DynalistScript, "www/assets/js/main.min.js"},
		{"AppScratchDir", AppScratchDir, "app"},
		{"DynalistScratchDir", DynalistScratchDir, "dynalist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestBackupName(t *testing.T) {
	if got := BackupName("app.asar"); got != "app.asarbackup" {
		t.Errorf("BackupName(app.asar) = %q, want %q", got, "app.asarbackup")
	}
}

// ///////////////////////////////////////////////
// Layout Tests
// ///////////////////////////////////////////////

func TestNewLayout(t *testing.T) {
	root := filepath.Join("opt", "Dynalist")
	l := NewLayout(root)
	res := filepath.Join(root, "resources")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Root", l.Root, root},
		{"Resources", l.Resources, res},
		{"Temp", l.Temp, filepath.Join(res, "temp")},
		{"AppArchive", l.AppArchive, filepath.Join(res, "app.asar")},
		{"DynalistArchive", l.DynalistArchive, filepath.Join(res, "dynalist.asar")},
		{"AppBackup", l.AppBackup, filepath.Join(res, "app.asarbackup")},
		{"DynalistBackup", l.DynalistBackup, filepath.Join(res, "dynalist.asarbackup")},
		{"AppScratch", l.AppScratch, filepath.Join(res, "temp", "app")},
		{"DynalistScratch", l.DynalistScratch, filepath.Join(res, "temp", "dynalist")},
		{"Lock", l.Lock, filepath.Join(res, "temp", "dynapatch.lock")},
		{"Config", l.Config, filepath.Join(res, "dynapatch.toml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestNewLayoutDeterministic(t *testing.T) {
	a := NewLayout("/x/y")
	b := NewLayout("/x/y")
	if a != b {
		t.Errorf("NewLayout not deterministic: %+v vs %+v", a, b)
	}
}

func TestScratchDirsDisjoint(t *testing.T) {
	l := NewLayout(t.TempDir())
	if l.AppScratch == l.DynalistScratch {
		t.Fatal("scratch directories must differ")
	}
	if rel, err := filepath.Rel(l.AppScratch, l.DynalistScratch); err == nil && rel == "." {
		t.Fatal("scratch directories overlap")
	}
}

func TestInScratch(t *testing.T) {
	got := InScratch(filepath.Join("tmp", "dyn"), DynalistScript)
	want := filepath.Join("tmp", "dyn", "www", "assets", "js", "main.min.js")
	if got != want {
		t.Errorf("InScratch = %q, want %q", got, want)
	}
}
