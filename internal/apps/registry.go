// Package apps loads the declarative mapping from application id to the
// scripts that start and stop it.
package apps

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/validation"
	"sigs.k8s.io/yaml"
)

const (
	keyScriptPrefix = "script_prefix"
	keyVerifyPorts  = "verify_ports"
)

// Descriptor is one registry entry.
type Descriptor struct {
	ID           string
	ScriptPrefix string
	// VerifyPorts is empty for applications that cannot be verified.
	VerifyPorts []int32
}

func (d Descriptor) OnScript() string {
	return d.ScriptPrefix + ".on.sh"
}

func (d Descriptor) OffScript() string {
	return d.ScriptPrefix + ".off.sh"
}

// Verifiable reports whether the application lists ports to check.
func (d Descriptor) Verifiable() bool {
	return len(d.VerifyPorts) > 0
}

// Registry resolves application ids against a Source. Nothing is cached: the
// document is read again on every call.
type Registry struct {
	Source Source
	// Scripts, when set, is checked for both of a descriptor's scripts
	// before Resolve returns it.
	Scripts fs.FS
}

// Load reads and parses the whole document.
func (r *Registry) Load(ctx context.Context) (map[string]Descriptor, error) {
	data, err := r.Source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Resolve returns the descriptor for id.
func (r *Registry) Resolve(ctx context.Context, id string) (Descriptor, error) {
	all, err := r.Load(ctx)
	if err != nil {
		return Descriptor{}, err
	}

	d, ok := all[id]
	if !ok {
		return Descriptor{}, &UnknownApplicationError{ID: id}
	}

	if r.Scripts != nil {
		for _, name := range []string{d.OnScript(), d.OffScript()} {
			if _, err := fs.Stat(r.Scripts, name); err != nil {
				return Descriptor{}, &ConfigMalformedError{ID: id, Err: fmt.Errorf("script %s: %w", name, err)}
			}
		}
	}
	return d, nil
}

// IDs returns the registered application ids in sorted order.
func IDs(all map[string]Descriptor) []string {
	return sets.List(sets.KeySet(all))
}

// Parse decodes a YAML or JSON registry document. Each entry must be exactly
// {script_prefix} or {script_prefix, verify_ports}; any other shape fails the
// whole document.
func Parse(data []byte) (map[string]Descriptor, error) {
	var raw map[string]map[string]json.RawMessage
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigMalformedError{Err: err}
	}

	out := make(map[string]Descriptor, len(raw))
	var errs []error
	var badID string
	var badErr error
	for _, id := range sets.List(sets.KeySet(raw)) {
		d, err := parseEntry(id, raw[id])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			badID, badErr = id, err
			continue
		}
		out[id] = d
	}

	switch len(errs) {
	case 0:
		return out, nil
	case 1:
		return nil, &ConfigMalformedError{ID: badID, Err: badErr}
	default:
		return nil, &ConfigMalformedError{Err: utilerrors.NewAggregate(errs)}
	}
}

func parseEntry(id string, entry map[string]json.RawMessage) (Descriptor, error) {
	_, hasPrefix := entry[keyScriptPrefix]
	_, hasPorts := entry[keyVerifyPorts]

	switch {
	case !hasPrefix:
		return Descriptor{}, fmt.Errorf("missing %s", keyScriptPrefix)
	case len(entry) == 1:
	case len(entry) == 2 && hasPorts:
	default:
		extra := sets.KeySet(entry).Delete(keyScriptPrefix, keyVerifyPorts)
		return Descriptor{}, fmt.Errorf("unexpected keys %s", strings.Join(sets.List(extra), ", "))
	}

	d := Descriptor{ID: id}
	if err := json.Unmarshal(entry[keyScriptPrefix], &d.ScriptPrefix); err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", keyScriptPrefix, err)
	}
	if d.ScriptPrefix == "" {
		return Descriptor{}, fmt.Errorf("%s must not be empty", keyScriptPrefix)
	}
	if !fs.ValidPath(d.OnScript()) {
		return Descriptor{}, fmt.Errorf("%s %q is not a valid script name", keyScriptPrefix, d.ScriptPrefix)
	}

	if hasPorts {
		if err := json.Unmarshal(entry[keyVerifyPorts], &d.VerifyPorts); err != nil {
			return Descriptor{}, fmt.Errorf("%s: %w", keyVerifyPorts, err)
		}
		for _, port := range d.VerifyPorts {
			if msgs := validation.IsValidPortNum(int(port)); len(msgs) > 0 {
				return Descriptor{}, fmt.Errorf("%s: %d: %s", keyVerifyPorts, port, strings.Join(msgs, "; "))
			}
		}
	}
	return d, nil
}
