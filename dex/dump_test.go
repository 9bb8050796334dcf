package dex

import (
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	f, err := Verify(buildContainer(t, helloClass()))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	var sb strings.Builder
	if err := Dump(&sb, f, DumpOptions{Header: true, Disassemble: true}); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	out := sb.String()
	for _, want := range []string{
		"DEX file header:",
		"Class descriptor  : 'LHello;'",
		"name          : 'COUNT'",
		"value         : 7",
		"access        : 0x10001 (PUBLIC CONSTRUCTOR)",
		"add-int v0, v2, v3",
		"0x0002 line=11",
		"source_file_idx",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump output missing %q", want)
		}
	}
}

func TestDumpClassFilter(t *testing.T) {
	other := &ClassSpec{Descriptor: "LOther;", AccessFlags: AccPublic, Superclass: "Ljava/lang/Object;"}
	f, err := Verify(buildContainer(t, helloClass(), other))
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	var sb strings.Builder
	if err := Dump(&sb, f, DumpOptions{Class: "LOther;"}); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if strings.Contains(sb.String(), "LHello;") {
		t.Error("class filter did not exclude LHello;")
	}
}
