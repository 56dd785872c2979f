package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"SignalEngine/internal/domain/models"
)

type ruleFile struct {
	Rules []*models.Rule `json:"rules" yaml:"rules"`
}

// ReadRulesFile decodes a YAML or JSON rule file, picked by extension.
// Unknown operator names fail the decode.
func ReadRulesFile(path string) ([]*models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return DecodeRules(data, filepath.Ext(path))
}

func DecodeRules(data []byte, ext string) ([]*models.Rule, error) {
	var f ruleFile
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode rules: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported rules file extension %q", ext)
	}
	return f.Rules, nil
}

// WriteRulesFile encodes rules as YAML or JSON, picked by extension.
func WriteRulesFile(path string, rules []*models.Rule) error {
	data, err := EncodeRules(rules, filepath.Ext(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EncodeRules renders rules in the rule file layout. Anything but ".json"
// yields YAML.
func EncodeRules(rules []*models.Rule, ext string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	f := ruleFile{Rules: rules}
	switch strings.ToLower(ext) {
	case ".json":
		data, err = json.MarshalIndent(f, "", "  ")
	default:
		data, err = yaml.Marshal(f)
	}
	if err != nil {
		return nil, fmt.Errorf("encode rules: %w", err)
	}
	return data, nil
}
