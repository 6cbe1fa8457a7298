package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/witanlabs/witan-assist/config"
	"github.com/xuri/excelize/v2"
)

// writeSalesBook saves a Region/Sales/Costs table to a temp .xlsx.
func writeSalesBook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"Region", "Sales", "Costs"},
		{"North", 120, 80},
		{"South", 300, 210},
		{"West", 95.5, 60},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		row := r
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	if err := f.AddTable("Sheet1", &excelize.Table{Range: "A1:C4", Name: "SalesTable"}); err != nil {
		t.Fatalf("AddTable: %v", err)
	}
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	return path
}

// runCLI executes the root command in-process with an isolated config dir.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)
	if os.Getenv("WITAN_ASSIST_CONFIG_DIR") == "" {
		t.Setenv("WITAN_ASSIST_CONFIG_DIR", t.TempDir())
	}
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func cellValue(t *testing.T, path, cell string) string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	v, err := f.GetCellValue("Sheet1", cell)
	if err != nil {
		t.Fatalf("GetCellValue(%s): %v", cell, err)
	}
	return v
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestClassifyCommand(t *testing.T) {
	out, err := runCLI(t, "", "classify", "sort", "by", "sales")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.HasPrefix(out, "sort_sales_desc\t") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = runCLI(t, "", "classify", "--json", "--locale", "zh-CN", "insert profits")
	if err != nil {
		t.Fatalf("classify --json: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got["action"] != "insert_profits" || !strings.Contains(got["description"], "Profits = Sales - Costs") {
		t.Fatalf("unexpected JSON: %v", got)
	}

	_, err = runCLI(t, "", "classify", "make", "coffee")
	if code := exitCode(err); code != exitUnsupported {
		t.Fatalf("expected exit %d for unsupported text, got %v", exitUnsupported, err)
	}
}

func TestXlsxPreview_LeavesWorkbookUntouched(t *testing.T) {
	path := writeSalesBook(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "", "xlsx", "preview", path, "sort", "by", "sales")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"descending", "Region", "North", "95.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("preview output missing %q:\n%s", want, out)
		}
	}
	// The preview lists rows in their current order.
	if strings.Index(out, "North") > strings.Index(out, "South") {
		t.Fatalf("expected unsorted rows:\n%s", out)
	}

	out, err = runCLI(t, "", "xlsx", "--json", "preview", path, "scatter sales and costs")
	if err != nil {
		t.Fatalf("preview --json: %v", err)
	}
	var prop struct {
		Action      string `json:"action"`
		PreviewKind string `json:"preview_kind"`
		Preview     struct {
			Points []struct{ X, Y float64 } `json:"points"`
		} `json:"preview"`
	}
	if err := json.Unmarshal([]byte(out), &prop); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if prop.Action != "scatter_sales_costs" || prop.PreviewKind != "scatter" || len(prop.Preview.Points) != 3 {
		t.Fatalf("unexpected proposal: %+v", prop)
	}
	if p := prop.Preview.Points[1]; p.X != 300 || p.Y != 210 {
		t.Fatalf("unexpected point: %+v", p)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("preview modified the workbook")
	}
}

func TestXlsxPreview_Unsupported(t *testing.T) {
	path := writeSalesBook(t)
	out, err := runCLI(t, "", "xlsx", "preview", path, "delete", "everything")
	if code := exitCode(err); code != exitUnsupported {
		t.Fatalf("expected exit %d, got %v", exitUnsupported, err)
	}
	if !strings.Contains(out, "not supported") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestXlsxApply_SortWithYes(t *testing.T) {
	path := writeSalesBook(t)
	out, err := runCLI(t, "", "xlsx", "apply", "--yes", path, "sort", "by", "sales")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(out, "Applied: Sorted by Sales") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	for cell, want := range map[string]string{"A2": "South", "A3": "North", "A4": "West"} {
		if got := cellValue(t, path, cell); got != want {
			t.Fatalf("%s = %q, want %q", cell, got, want)
		}
	}
}

func TestXlsxApply_PromptDeclined(t *testing.T) {
	path := writeSalesBook(t)
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "n\n", "xlsx", "apply", path, "insert profits"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("declined apply modified the workbook")
	}
}

func TestXlsxApply_InsertProfitsJSON(t *testing.T) {
	path := writeSalesBook(t)
	out, err := runCLI(t, "yes\n", "xlsx", "--json", "apply", path, "insert profits")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var got struct {
		Proposal struct {
			Action string `json:"action"`
		} `json:"proposal"`
		Outcome struct {
			Changed bool   `json:"changed"`
			Detail  string `json:"detail"`
		} `json:"outcome"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if got.Proposal.Action != "insert_profits" || !got.Outcome.Changed {
		t.Fatalf("unexpected result: %+v", got)
	}
	if h := cellValue(t, path, "D1"); h != "Profits" {
		t.Fatalf("D1 = %q, want Profits", h)
	}

	// A second insert finds the column and changes nothing.
	out, err = runCLI(t, "", "xlsx", "apply", "-y", path, "insert profits")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !strings.Contains(out, "Nothing to do") {
		t.Fatalf("expected no-op, got:\n%s", out)
	}
}

func TestXlsxApply_MissingFile(t *testing.T) {
	_, err := runCLI(t, "", "xlsx", "apply", "-y", filepath.Join(t.TempDir(), "nope.xlsx"), "sort sales")
	if err == nil {
		t.Fatal("expected error for missing workbook")
	}
}

func TestChat_PreviewThenApply(t *testing.T) {
	path := writeSalesBook(t)
	script := strings.Join([]string{
		"apply",
		"hello there",
		"scatter sales vs costs",
		"sort by sales",
		"cancel",
		"apply",
		"sort by sales",
		"y",
		"quit",
	}, "\n") + "\n"

	out, err := runCLI(t, script, "chat", path)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if n := strings.Count(out, "Nothing to apply."); n != 2 {
		t.Fatalf("expected 2 empty applies, got %d:\n%s", n, out)
	}
	for _, want := range []string{"not supported", "points", "Cancelled.", "Applied: Sorted by Sales"} {
		if !strings.Contains(out, want) {
			t.Fatalf("chat output missing %q:\n%s", want, out)
		}
	}
	if got := cellValue(t, path, "A2"); got != "South" {
		t.Fatalf("A2 = %q, want South", got)
	}
}

func TestConfigCommands(t *testing.T) {
	t.Setenv("WITAN_ASSIST_CONFIG_DIR", t.TempDir())

	if _, err := runCLI(t, "", "config", "set", "locale", "zh-CN"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := runCLI(t, "", "config", "set", "api-key", "secret-1234"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := runCLI(t, "", "config", "set", "timeout", "never"); err == nil {
		t.Fatal("expected invalid timeout error")
	}

	out, err := runCLI(t, "", "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "locale = zh-CN") || !strings.Contains(out, "api-key = ****1234") {
		t.Fatalf("unexpected show output:\n%s", out)
	}
	if strings.Contains(out, "secret") {
		t.Fatalf("api key leaked:\n%s", out)
	}

	// Saved locale reaches the classifier.
	out, err = runCLI(t, "", "classify", "sort sales")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.Contains(out, "降序") {
		t.Fatalf("expected zh-CN description, got %q", out)
	}

	if _, err := runCLI(t, "", "config", "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != (config.Config{}) {
		t.Fatalf("expected empty config after reset, got %+v", cfg)
	}
}
