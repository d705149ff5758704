package store_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mschirtzinger/teamboard/internal/store"
)

type note struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
	Done bool   `yaml:"done"`
}

func (n note) EntityID() string { return n.ID }

func (n note) Validate() error {
	if n.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

// A document written before the repository was versioned is a bare
// sequence. Init upgrades it through the chain and rewrites the file.
func ExampleRepository_Init() {
	dir, err := os.MkdirTemp("", "notes")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "notes.yaml")
	legacy := "- id: n1\n  body: buy milk\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		log.Fatal(err)
	}

	migrations := store.NewMigrationBuilder().
		AddEach("rename body to text", func(r store.Record) (store.Record, error) {
			r["text"] = r["body"]
			delete(r, "body")
			return r, nil
		}).
		AddEach("add done", func(r store.Record) (store.Record, error) {
			r["done"] = false
			return r, nil
		}).
		Build()

	repo := store.New[note](path, migrations, store.Options{Name: "notes", FailFast: true})
	if err := repo.Init(context.Background()); err != nil {
		log.Fatal(err)
	}

	n, _ := repo.Get("n1")
	fmt.Println(repo.Version(), n.Text, n.Done)

	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	first := bufio.NewScanner(f)
	first.Scan()
	fmt.Println(first.Text())

	// Output:
	// 2 buy milk false
	// version: 2
}
