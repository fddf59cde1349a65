package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// CorruptedDir is where Salvage moves broken audit files by default.
const CorruptedDir = "audit_corrupted"

// SalvageReport describes what Salvage did to one file.
type SalvageReport struct {
	Path          string
	Valid         bool
	BrokenLine    int // 1-based
	BadLine       string
	Kept          int
	CorruptedPath string
	SalvagedPath  string
}

// Salvage validates path and, if its chain is broken, moves it into
// corruptedDir and writes <stem>_salvaged<ext> beside it holding only the
// verified prefix. Intact files are left untouched.
func Salvage(path, corruptedDir string, key []byte) (*SalvageReport, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}

	report := &SalvageReport{Path: path}
	idx := FirstDivergence(lines, key)
	if idx < 0 {
		report.Valid = true
		report.Kept = len(lines)
		return report, nil
	}

	report.BrokenLine = idx + 1
	report.BadLine = lines[idx]
	report.Kept = idx

	if corruptedDir == "" {
		corruptedDir = filepath.Join(filepath.Dir(path), CorruptedDir)
	}
	if err := os.MkdirAll(corruptedDir, 0750); err != nil {
		return nil, errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create corrupted audit directory", err)
	}

	report.CorruptedPath = filepath.Join(corruptedDir, filepath.Base(path))
	if err := os.Rename(path, report.CorruptedPath); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to move %s", path), err)
	}

	ext := filepath.Ext(path)
	report.SalvagedPath = strings.TrimSuffix(path, ext) + "_salvaged" + ext

	var content string
	if idx > 0 {
		content = strings.Join(lines[:idx], "\n") + "\n"
	}
	if err := os.WriteFile(report.SalvagedPath, []byte(content), 0600); err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileWriteFailed, "failed to write salvaged audit", err)
	}
	return report, nil
}

// ScanStatus classifies one audit file.
type ScanStatus string

const (
	ScanOK      ScanStatus = "ok"
	ScanBroken  ScanStatus = "broken"
	ScanEmpty   ScanStatus = "empty"
	ScanSkipped ScanStatus = "skipped"
)

// ScanResult is the validation outcome for one audit file.
type ScanResult struct {
	Path   string
	Status ScanStatus
	KeyID  string
	// Divergence is the 0-based index of the first bad record when broken.
	Divergence int
	Records    int
}

// ScanDir validates every audit_*.jsonl in dir, oldest first. Keyed chains
// whose key is not in keys are reported as skipped.
func ScanDir(dir string, keys *Keyring) ([]ScanResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "audit_*.jsonl"))
	if err != nil {
		return nil, err
	}
	sortByModTime(paths)

	results := make([]ScanResult, 0, len(paths))
	for _, p := range paths {
		lines, err := ReadLines(p)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", p), err)
		}
		results = append(results, Check(p, lines, keys))
	}
	return results, nil
}

// Check classifies already-read lines of the audit file at path.
func Check(path string, lines []string, keys *Keyring) ScanResult {
	res := ScanResult{Path: path, Records: len(lines), Divergence: -1}
	if len(lines) == 0 {
		res.Status = ScanEmpty
		return res
	}

	var key []byte
	res.KeyID = FirstKeyID(lines)
	if res.KeyID != "" {
		k, ok := keys.lookup(res.KeyID)
		if !ok {
			res.Status = ScanSkipped
			return res
		}
		key = k
	}

	res.Divergence = FirstDivergence(lines, key)
	if res.Divergence < 0 {
		res.Status = ScanOK
	} else {
		res.Status = ScanBroken
	}
	return res
}

func (k *Keyring) lookup(id string) ([]byte, bool) {
	if k == nil {
		return nil, false
	}
	return k.Lookup(id)
}

func sortByModTime(paths []string) {
	mod := make(map[string]int64, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			mod[p] = info.ModTime().UnixNano()
		}
	}
	sort.SliceStable(paths, func(i, j int) bool { return mod[paths[i]] < mod[paths[j]] })
}

// KeyUsage counts audit files per key id.
type KeyUsage struct {
	ByKeyID map[string]int
	Plain   int
}

// CollectKeyUsage reports which key ids the audit_*.jsonl files in dir use.
func CollectKeyUsage(dir string) (*KeyUsage, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "audit_*.jsonl"))
	if err != nil {
		return nil, err
	}
	usage := &KeyUsage{ByKeyID: make(map[string]int)}
	for _, p := range paths {
		lines, err := ReadLines(p)
		if err != nil {
			continue
		}
		if id := FirstKeyID(lines); id != "" {
			usage.ByKeyID[id]++
		} else {
			usage.Plain++
		}
	}
	return usage, nil
}
