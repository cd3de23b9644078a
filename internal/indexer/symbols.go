package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/errors"
)

const maxSymbolLine = 1 << 20

// ReadSymbols parses a symbol table with one JSON object per line:
//
//	{"name":"Next","scope":"Random","url":"../class_random.html","anchor":"a762f"}
//
// Blank lines and lines starting with '#' are skipped.
func ReadSymbols(r io.Reader) ([]index.Symbol, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSymbolLine)
	var syms []index.Symbol
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var sym index.Symbol
		if err := json.Unmarshal([]byte(text), &sym); err != nil {
			return nil, fmt.Errorf("%w: symbol table line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		syms = append(syms, sym)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}
	return syms, nil
}

// ReadSymbolFile opens path and parses it with ReadSymbols.
func ReadSymbolFile(path string) ([]index.Symbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbol table: %w", err)
	}
	defer f.Close()
	return ReadSymbols(f)
}

// ImportLegacy feeds every Doxygen search script (all_*.js) in dir into the
// engine, in file-name order, and returns how many files were read.
func ImportLegacy(e *Engine, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "all_*.js"))
	if err != nil {
		return 0, fmt.Errorf("listing legacy index files: %w", err)
	}
	sort.Strings(paths)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, fmt.Errorf("reading %s: %w", path, err)
		}
		entries, err := segment.DecodeSearchData(data)
		if err != nil {
			return 0, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
		}
		for _, entry := range entries {
			if err := e.AddEntry(entry); err != nil {
				return 0, fmt.Errorf("importing %s: %w", filepath.Base(path), err)
			}
		}
		e.logger.Info("legacy index imported", "file", filepath.Base(path), "entries", len(entries))
	}
	return len(paths), nil
}
