package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"yqhp/tts-engine/pkg/types"
)

// ScriptLine is one utterance of a rendering script.
type ScriptLine struct {
	Speaker  string `yaml:"speaker" json:"speaker"`
	Text     string `yaml:"text" json:"text"`
	Instruct string `yaml:"instruct,omitempty" json:"instruct,omitempty"`
}

// Script is an ordered list of utterances.
type Script struct {
	Lines []ScriptLine `yaml:"lines"`
}

// LoadScript reads a script YAML file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script file: %w", err)
	}

	s := &Script{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse script file: %w", err)
	}
	if len(s.Lines) == 0 {
		return nil, fmt.Errorf("script %s has no lines", path)
	}
	return s, nil
}

// BuildItems routes every script line through the voices configuration.
// Lines whose speaker is unknown are reported as failed items instead of
// aborting the whole script.
func (s *Script) BuildItems(voices *Voices) (items []types.WorkItem, failed []types.ItemFailure) {
	for i, line := range s.Lines {
		item, err := voices.BuildItem(i, line.Speaker, line.Text, line.Instruct)
		if err != nil {
			failed = append(failed, types.ItemFailure{Index: i, Message: err.Error()})
			continue
		}
		items = append(items, item)
	}
	return items, failed
}
