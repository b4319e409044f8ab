// Copyright 2020-2023 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema loads .proto definitions at runtime and exposes the linked
// descriptors as a registry and dynamic message factory, the two
// collaborators the text-format parser expects from its host.
package schema

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kralicky/protocompile"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Loader compiles protobuf source files into fully linked descriptors. The
// zero value resolves imports against the working directory and compiles
// with protocompile's default parallelism.
type Loader struct {
	// ImportPaths are the roots import statements resolve against, in order.
	ImportPaths []string
	// Accessor overrides how source files are opened, for in-memory sources.
	Accessor func(path string) (io.ReadCloser, error)
	// MaxParallelism caps concurrent compilation. Non-positive means the
	// compiler picks a value based on the machine.
	MaxParallelism int
	// Logger receives debug-level progress messages. Nil disables logging.
	Logger *slog.Logger
}

// Load compiles the named files, plus everything they import, and returns a
// registry over the linked results.
func (l *Loader) Load(ctx context.Context, paths ...string) (*Registry, error) {
	var accessor func(path protocompile.ResolvedPath) (io.ReadCloser, error)
	if l.Accessor != nil {
		accessor = func(path protocompile.ResolvedPath) (io.ReadCloser, error) {
			return l.Accessor(string(path))
		}
	}
	comp := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: l.ImportPaths,
			Accessor:    accessor,
		}),
		MaxParallelism:               l.MaxParallelism,
		IncludeDependenciesInResults: true,
	}
	resolved := make([]protocompile.ResolvedPath, len(paths))
	for i, p := range paths {
		resolved[i] = protocompile.ResolvedPath(p)
	}
	res, err := comp.Compile(ctx, resolved...)
	if err != nil {
		return nil, err
	}
	files := new(protoregistry.Files)
	for _, f := range res.Files {
		if err := files.RegisterFile(f); err != nil {
			return nil, err
		}
	}
	if l.Logger != nil {
		l.Logger.Debug("compiled proto schema",
			"requested", len(paths),
			"registered", files.NumFiles())
	}
	return &Registry{files: files, types: dynamicpb.NewTypes(files)}, nil
}

// Discover walks every import root concurrently and returns the root-relative
// paths of all .proto files found, deduplicated and sorted, in the form Load
// expects.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	eg, ctx := errgroup.WithContext(ctx)
	perRoot := make([][]string, len(l.ImportPaths))
	for i, root := range l.ImportPaths {
		eg.Go(func() error {
			return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() || !strings.HasSuffix(path, ".proto") {
					return nil
				}
				rel, err := filepath.Rel(root, path)
				if err != nil {
					return err
				}
				perRoot[i] = append(perRoot[i], filepath.ToSlash(rel))
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var all []string
	for _, paths := range perRoot {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			all = append(all, p)
		}
	}
	sort.Strings(all)
	return all, nil
}

// LoadAll is Discover followed by Load.
func (l *Loader) LoadAll(ctx context.Context) (*Registry, error) {
	paths, err := l.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, paths...)
}

// Registry holds the linked descriptors of one Load and constructs dynamic
// messages for them.
type Registry struct {
	files *protoregistry.Files
	types *dynamicpb.Types
}

// Files returns the underlying descriptor registry.
func (r *Registry) Files() *protoregistry.Files {
	return r.files
}

// Types resolves message, enum and extension types against the registry. The
// result satisfies the parser's extension resolver contract.
func (r *Registry) Types() *dynamicpb.Types {
	return r.types
}

// NewMessage constructs an empty dynamic message for the named type.
func (r *Registry) NewMessage(name protoreflect.FullName) (proto.Message, error) {
	mt, err := r.types.FindMessageByName(name)
	if err != nil {
		return nil, err
	}
	return mt.New().Interface(), nil
}
