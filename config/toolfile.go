package config

import (
	"fmt"
	"os"

	"github.com/richinex/biotools/tools"
	"gopkg.in/yaml.v3"
)

// toolFile is the on-disk shape of BIOTOOLS_TOOLS_FILE.
//
//	tools:
//	  blastp:
//	    command: /opt/ncbi/bin/blastp
//	    prefix: []
//	    env:
//	      BLASTDB: /data/blastdb
type toolFile struct {
	Tools map[string]tools.Command `yaml:"tools"`
}

// DefaultCommands maps tool ids to programs, running them through
// `micromamba run -n <env>` when an environment is configured.
func DefaultCommands(s Settings) map[string]tools.Command {
	return map[string]tools.Command{
		tools.ToolBlastp:        {Path: "blastp", Prefix: micromamba(s.Blast.MMEnv)},
		tools.ToolUpdateBlastDB: {Path: "update_blastdb.pl", Prefix: micromamba(s.Blast.MMEnv)},
		tools.ToolSpider:        {Path: "python", Prefix: micromamba(s.Spider.MMEnv)},
	}
}

func micromamba(env string) []string {
	if env == "" {
		return nil
	}
	return []string{"micromamba", "run", "-n", env}
}

// LoadToolCommands returns DefaultCommands with overrides from
// Tools.CommandsFile applied. Fields missing from the file keep their defaults;
// an explicit empty prefix removes the micromamba wrapper.
func LoadToolCommands(s Settings) (map[string]tools.Command, error) {
	commands := DefaultCommands(s)
	if s.Tools.CommandsFile == "" {
		return commands, nil
	}

	data, err := os.ReadFile(s.Tools.CommandsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools file: %w", err)
	}

	var file toolFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tools file %s: %w", s.Tools.CommandsFile, err)
	}

	for id, override := range file.Tools {
		cmd := commands[id]
		if override.Path != "" {
			cmd.Path = override.Path
		}
		if override.Prefix != nil {
			cmd.Prefix = override.Prefix
		}
		if len(override.Env) > 0 {
			cmd.Env = override.Env
		}
		if cmd.Path == "" {
			cmd.Path = id
		}
		commands[id] = cmd
	}
	return commands, nil
}
