package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSourceGenomesParsesFasta(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refs.fa")
	content := ">seq1 some description\nACGTACGT\n>seq2\nTTTTGGGG\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	genomes, err := loadSourceGenomes(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(genomes) != 2 {
		t.Fatalf("expected 2 genomes, got %d", len(genomes))
	}
	if genomes[0].ID != "seq1" {
		t.Fatalf("unexpected id for first genome: %q", genomes[0].ID)
	}
	if string(genomes[1].Seq) != "TTTTGGGG" {
		t.Fatalf("unexpected seq for second genome: %q", genomes[1].Seq)
	}
}

func TestLoadSourceGenomesMissingFile(t *testing.T) {
	_, err := loadSourceGenomes(filepath.Join(t.TempDir(), "missing.fa"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
