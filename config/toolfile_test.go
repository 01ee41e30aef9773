package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/biotools/tools"
)

func TestDefaultCommands(t *testing.T) {
	s := Settings{
		Blast:  BlastConfig{MMEnv: "blast"},
		Spider: SpiderConfig{MMEnv: ""},
	}
	commands := DefaultCommands(s)

	blastp := commands[tools.ToolBlastp]
	if got := strings.Join(blastp.Argv([]string{"-version"}), " "); got != "micromamba run -n blast blastp -version" {
		t.Errorf("unexpected blastp argv: %q", got)
	}
	updater := commands[tools.ToolUpdateBlastDB]
	if updater.Path != "update_blastdb.pl" {
		t.Errorf("unexpected updater path %q", updater.Path)
	}
	spider := commands[tools.ToolSpider]
	if len(spider.Prefix) != 0 || spider.Path != "python" {
		t.Errorf("expected bare python for spider, got %+v", spider)
	}
}

func TestLoadToolCommandsWithoutFile(t *testing.T) {
	commands, err := LoadToolCommands(Settings{})
	if err != nil {
		t.Fatalf("LoadToolCommands failed: %v", err)
	}
	if len(commands) != 3 {
		t.Errorf("expected 3 default commands, got %d", len(commands))
	}
}

func TestLoadToolCommandsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	content := `
tools:
  blastp:
    command: /opt/ncbi/bin/blastp
    prefix: []
    env:
      BLASTDB: /data/blastdb
  spider:
    prefix: ["conda", "run", "-n", "spider-gpu"]
  makeblastdb:
    prefix: ["micromamba", "run", "-n", "blast"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	s := Settings{
		Blast:  BlastConfig{MMEnv: "blast"},
		Spider: SpiderConfig{MMEnv: "spider"},
		Tools:  ToolsConfig{CommandsFile: path},
	}
	commands, err := LoadToolCommands(s)
	if err != nil {
		t.Fatalf("LoadToolCommands failed: %v", err)
	}

	blastp := commands[tools.ToolBlastp]
	if blastp.Path != "/opt/ncbi/bin/blastp" || len(blastp.Prefix) != 0 {
		t.Errorf("expected overridden blastp without prefix, got %+v", blastp)
	}
	if blastp.Env["BLASTDB"] != "/data/blastdb" {
		t.Errorf("expected BLASTDB env, got %v", blastp.Env)
	}

	spider := commands[tools.ToolSpider]
	if spider.Path != "python" || strings.Join(spider.Prefix, " ") != "conda run -n spider-gpu" {
		t.Errorf("expected python under conda, got %+v", spider)
	}

	updater := commands[tools.ToolUpdateBlastDB]
	if strings.Join(updater.Prefix, " ") != "micromamba run -n blast" {
		t.Errorf("expected untouched updater, got %+v", updater)
	}

	extra := commands["makeblastdb"]
	if extra.Path != "makeblastdb" {
		t.Errorf("expected new tool to default to its id, got %+v", extra)
	}
}

func TestLoadToolCommandsErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("tools: [not, a, map"), 0644)

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), bad} {
		if _, err := LoadToolCommands(Settings{Tools: ToolsConfig{CommandsFile: path}}); err == nil {
			t.Errorf("expected error for %s", path)
		}
	}
}
