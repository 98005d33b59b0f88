package schema

import (
	"context"
	"errors"
	"strings"

	"github.com/stomita/salesforce-migration-automatic/util"
)

// Describer caches the schema of every object a run touches. It is built once
// up front, is immutable afterwards, and is safe for concurrent reads.
type Describer struct {
	ns      string
	objects map[string]*ObjectDescription            // lower(object name) -> description
	fields  map[string]map[string]*FieldDescription // lower(object name) -> lower(field name) -> field
}

// NewDescriber fetches the schema of each named object through client. Objects
// missing under their literal name are retried once with the default namespace
// stripped; a miss on both raises NotFoundError. Fetches run concurrently, one
// per object.
func NewDescriber(ctx context.Context, client Client, objects []string, defaultNamespace string) (*Describer, error) {
	seen := make(map[string]bool)
	names := make([]string, 0, len(objects))
	for _, name := range objects {
		lower := strings.ToLower(name)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		names = append(names, name)
	}

	descs, err := util.ConcurrentMapFuncWithError(names, -1, func(name string) (*ObjectDescription, error) {
		return describeWithFallback(ctx, client, name, defaultNamespace)
	})
	if err != nil {
		return nil, err
	}

	d := &Describer{
		ns:      defaultNamespace,
		objects: make(map[string]*ObjectDescription, len(descs)),
		fields:  make(map[string]map[string]*FieldDescription, len(descs)),
	}
	for _, desc := range descs {
		key := strings.ToLower(desc.Name)
		d.objects[key] = desc
		byName := make(map[string]*FieldDescription, len(desc.Fields))
		for i := range desc.Fields {
			field := &desc.Fields[i]
			byName[strings.ToLower(field.Name)] = field
		}
		d.fields[key] = byName
	}
	return d, nil
}

func describeWithFallback(ctx context.Context, client Client, name, ns string) (*ObjectDescription, error) {
	desc, err := client.Describe(ctx, name)
	if err == nil {
		return desc, nil
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		return nil, err
	}
	if stripped := StripNamespace(name, ns); stripped != name {
		desc, err = client.Describe(ctx, stripped)
		if err == nil {
			return desc, nil
		}
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	return nil, &NotFoundError{Object: name}
}

// DefaultNamespace returns the namespace used for tolerant lookups.
func (d *Describer) DefaultNamespace() string {
	return d.ns
}

// FindObject resolves an object description by name, or nil.
func (d *Describer) FindObject(name string) *ObjectDescription {
	desc, ok := LookupValue(d.objects, name, d.ns)
	if !ok {
		return nil
	}
	return desc
}

// FindField resolves a field description on the given object, or nil.
func (d *Describer) FindField(object, field string) *FieldDescription {
	byName, ok := LookupValue(d.fields, object, d.ns)
	if !ok {
		return nil
	}
	f, ok := LookupValue(byName, field, d.ns)
	if !ok {
		return nil
	}
	return f
}

// KnowsAny reports whether at least one of the names resolves to a described
// object. The classifier uses this to decide which reference fields can ever
// be satisfied by the run's datasets.
func (d *Describer) KnowsAny(names []string) bool {
	for _, name := range names {
		if d.FindObject(name) != nil {
			return true
		}
	}
	return false
}
