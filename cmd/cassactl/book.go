package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"cassa/internal/config"
	"cassa/internal/core"
	"cassa/internal/ledger"
	"cassa/internal/snapshot"
)

// fileFlags are shared by every command: which snapshot to read and how to
// present it.
type fileFlags struct {
	household string
	file      string
	policy    string
	profile   string
}

func (f *fileFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.file, "f", "", "snapshot file (defaults to data/<household>.json)")
	fs.StringVar(&f.household, "household", f.household, "household ID")
	fs.StringVar(&f.policy, "policy", f.policy, "balance policy for mutations (advisory, strict)")
	fs.StringVar(&f.profile, "profile", f.profile, "household profile with display names (YAML)")
}

func (f *fileFlags) path() string {
	if f.file != "" {
		return f.file
	}
	return filepath.Join("data", f.household+".json")
}

func (f *fileFlags) load() (ledger.Book, error) {
	data, err := os.ReadFile(f.path())
	if err != nil {
		return ledger.Book{}, err
	}
	return snapshot.Decode(data)
}

// save writes the book next to the target and renames it into place.
func (f *fileFlags) save(b ledger.Book) error {
	data, err := snapshot.Encode(b)
	if err != nil {
		return err
	}
	target := f.path()
	tmp, err := os.CreateTemp(filepath.Dir(target), ".cassa-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (f *fileFlags) engine() (*ledger.Engine, error) {
	p, err := ledger.ParsePolicy(f.policy)
	if err != nil {
		return nil, err
	}
	return ledger.NewEngine(p), nil
}

// names loads the household profile given by -profile, or the default one.
func (f *fileFlags) names() (*config.Profile, error) {
	return config.LoadProfile(f.profile)
}

func describe(p *config.Profile, i int, e ledger.Entry) string {
	m := e.Base()
	owner := p.Name(core.UserID(e.Owner()))
	line := fmt.Sprintf("#%d %s %s %-16s %-12s %s", i, m.ID, m.Date, e.Kind().Label(), owner, e.Total())
	if m.Note != "" {
		line += "  " + m.Note
	}
	return line
}
