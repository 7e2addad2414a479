// Package registry はマイグレーションディスクリプタの収集と整列を提供する。
package registry

import (
	"slices"
	"strings"

	"schema-migrator/internal/domain"
)

// Source はディスクリプタの供給元。
type Source interface {
	Descriptors() ([]domain.Descriptor, error)
}

// SourceFunc は関数を Source として使うためのアダプタ。
type SourceFunc func() ([]domain.Descriptor, error)

// Descriptors は f() を呼ぶ。
func (f SourceFunc) Descriptors() ([]domain.Descriptor, error) {
	return f()
}

// Static は固定のディスクリプタ列を返す Source。
func Static(descriptors ...domain.Descriptor) Source {
	return SourceFunc(func() ([]domain.Descriptor, error) {
		return descriptors, nil
	})
}

// Registry は複数の Source からディスクリプタを集める。
type Registry struct {
	sources []Source
}

// New は新しいRegistryを生成する。
func New(sources ...Source) *Registry {
	return &Registry{sources: sources}
}

// AddSource は Source を追加する。
func (r *Registry) AddSource(s Source) {
	r.sources = append(r.sources, s)
}

// List は全ディスクリプタを検証し、ID昇順で返す。
// IDの重複は DuplicateIDError、構成の不備は MalformedDescriptorError になる。
func (r *Registry) List() ([]domain.Descriptor, error) {
	var all []domain.Descriptor
	seen := make(map[string]string)
	for _, src := range r.sources {
		descriptors, err := src.Descriptors()
		if err != nil {
			return nil, err
		}
		for _, d := range descriptors {
			if err := d.Validate(); err != nil {
				return nil, err
			}
			if prev, ok := seen[d.ID]; ok {
				return nil, &domain.DuplicateIDError{ID: d.ID, Sources: []string{prev, d.Source}}
			}
			seen[d.ID] = d.Source
			all = append(all, d)
		}
	}

	slices.SortFunc(all, func(a, b domain.Descriptor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return all, nil
}
