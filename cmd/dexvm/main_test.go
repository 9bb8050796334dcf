package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/dexvm/dex"
)

const descObject = "Ljava/lang/Object;"

func mainSpec(desc string, regs uint16, asm func(a *dex.Assembler, ix *dex.Index)) *dex.ClassSpec {
	return &dex.ClassSpec{
		Descriptor:  desc,
		AccessFlags: dex.AccPublic,
		Superclass:  descObject,
		DirectMethods: []dex.MethodSpec{{
			Name:        "main",
			Descriptor:  "([Ljava/lang/String;)V",
			AccessFlags: dex.AccPublic | dex.AccStatic,
			Code: &dex.CodeSpec{
				Registers: regs,
				Ins:       1,
				Outs:      1,
				Assemble: func(ix *dex.Index) []uint16 {
					a := dex.NewAssembler()
					asm(a, ix)
					return a.Insns()
				},
			},
		}},
	}
}

// writeProgram writes a container holding LMain;, which prints a
// greeting, and LBoom;, which divides by zero.
func writeProgram(t *testing.T, dir string) string {
	t.Helper()
	b := dex.NewBuilder()
	b.AddClass(mainSpec("LMain;", 2, func(a *dex.Assembler, ix *dex.Index) {
		a.Op21c(dex.OpConstString, 0, ix.String("hello from dexvm"))
		a.Op35c(dex.OpInvokeStatic, ix.Method("LPrint;", "println", "(Ljava/lang/String;)V"), 0)
		a.Op10x(dex.OpReturnVoid)
	}))
	b.AddClass(mainSpec("LBoom;", 2, func(a *dex.Assembler, ix *dex.Index) {
		a.Op11n(dex.OpConst4, 0, 0)
		a.Op23x(dex.OpDivInt, 0, 0, 0)
		a.Op10x(dex.OpReturnVoid)
	}))
	buf, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	path := filepath.Join(dir, "classes.dex")
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// writeConfig writes a quiet manifest whose cache lives in dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "dexvm.toml")
	content := "[log]\nverbosity = -4\n\n[cache]\nenabled = true\npath = \"cache/verify.db\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)

	out, err := execute(t, "--config", cfg, "verify", prog)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok, 2 classes") || strings.Contains(out, "cached") {
		t.Errorf("first verify output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "verify", prog)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "(cached)") {
		t.Errorf("second verify output = %q, want a cache hit", out)
	}

	out, err = execute(t, "--config", cfg, "--no-cache", "verify", prog)
	if err != nil || strings.Contains(out, "cached") {
		t.Errorf("--no-cache output = %q, err %v", out, err)
	}
}

func TestVerifyReportsCorruption(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)
	data, err := os.ReadFile(prog)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	bad := filepath.Join(dir, "bad.dex")
	if err := os.WriteFile(bad, data, 0644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfg, "verify", prog, bad)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 files") {
		t.Fatalf("verify err = %v", err)
	}
	if !strings.Contains(out, bad+": FAILED") {
		t.Errorf("output = %q", out)
	}
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)

	out, err := execute(t, "--config", cfg, "dump", "--class", "LBoom;", prog)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !strings.Contains(out, "Class descriptor  : 'LBoom;'") {
		t.Errorf("dump output missing LBoom;:\n%s", out)
	}
	if strings.Contains(out, "'LMain;'") {
		t.Errorf("class filter ignored:\n%s", out)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)

	out, err := execute(t, "--config", cfg, "run", prog)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "hello from dexvm") {
		t.Errorf("output = %q", out)
	}

	_, err = execute(t, "--config", cfg, "run", "--main", "LBoom;", prog)
	if err == nil || !strings.Contains(err.Error(), "uncaught") || !strings.Contains(err.Error(), "ArithmeticException") {
		t.Errorf("run LBoom; err = %v", err)
	}

	_, err = execute(t, "--config", cfg, "run", "--main", "LMissing;", prog)
	if err == nil {
		t.Error("running a missing class succeeded")
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)
	be := filepath.Join(dir, "big.dex")

	if out, err := execute(t, "--config", cfg, "convert", "--big-endian", "-o", be, prog); err != nil {
		t.Fatalf("convert: %v\n%s", err, out)
	}
	orig, err := os.ReadFile(prog)
	if err != nil {
		t.Fatal(err)
	}
	conv, err := os.ReadFile(be)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(orig, conv) {
		t.Fatal("big-endian output equals the little-endian input")
	}
	if _, err := dex.Verify(conv); err != nil {
		t.Fatalf("converted container does not verify: %v", err)
	}

	out, err := execute(t, "--config", cfg, "run", be)
	if err != nil || !strings.Contains(out, "hello from dexvm") {
		t.Errorf("run big-endian: %q, %v", out, err)
	}
}

func TestServeExit(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir)
	prog := writeProgram(t, dir)

	out, err := execute(t, "--config", cfg, "serve", "--jdwp", "127.0.0.1:0", "--monitor", "127.0.0.1:0", "--exit", prog)
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	if !strings.Contains(out, "hello from dexvm") {
		t.Errorf("output = %q", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "dexvm.toml")
	if err := os.WriteFile(cfg, []byte("[vm]\nheap_limit = 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", cfg, "verify", "x.dex"); err == nil {
		t.Error("invalid manifest accepted")
	}
}
