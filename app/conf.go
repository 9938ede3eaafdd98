package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

func codecOf(path string) (func([]byte, any) error, func(any) ([]byte, error)) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal, yaml.Marshal
	case ".json":
		return json.Unmarshal, func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	return nil, nil
}

func LoadConf(path string, out any) error {
	unmarshal, _ := codecOf(path)
	if unmarshal == nil {
		return errors.Errorf("app: load config %s no unmarshal func", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "app: load config %s read file", path)
	}
	err = unmarshal(data, out)
	if err != nil {
		return errors.Wrapf(err, "app: load config %s unmarshal", path)
	}
	return nil
}

// SaveConf writes in to path atomically, creating parent directories.
func SaveConf(path string, in any) error {
	_, marshal := codecOf(path)
	if marshal == nil {
		return errors.Errorf("app: save config %s no marshal func", path)
	}
	data, err := marshal(in)
	if err != nil {
		return errors.Wrapf(err, "app: save config %s marshal", path)
	}
	if err = os.MkdirAll(filepath.Dir(path), 0775); err != nil {
		return errors.Wrapf(err, "app: save config %s create dirs", path)
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(err, "app: save config %s write file", path)
	}
	if err = os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "app: save config %s rename", path)
	}
	return nil
}
