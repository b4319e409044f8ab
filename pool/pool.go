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

// Package pool provides a directory of extension fields keyed by their fully
// qualified dotted names, the lookup the text-format parser performs for
// every [a.b.c]-named field.
package pool

import (
	art "github.com/kralicky/go-adaptive-radix-tree"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"
)

// Pool indexes extension types under their full names in an adaptive radix
// tree, which keeps lookups cheap and makes whole-namespace prefix scans
// possible. A Pool is not safe for concurrent mutation; populate it first,
// then share it across any number of parses.
type Pool struct {
	extensions art.Tree[protoreflect.ExtensionType]
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{extensions: art.New[protoreflect.ExtensionType]()}
}

// Register adds one extension type, replacing any previous registration
// under the same full name.
func (p *Pool) Register(xt protoreflect.ExtensionType) {
	p.extensions.Insert(art.Key(xt.TypeDescriptor().FullName()), xt)
}

// RegisterFile registers every extension the file declares, at file scope
// and inside nested message declarations, wrapping each descriptor in a
// dynamic extension type.
func (p *Pool) RegisterFile(fd protoreflect.FileDescriptor) {
	p.registerExtensions(fd.Extensions())
	p.registerMessages(fd.Messages())
}

func (p *Pool) registerMessages(mds protoreflect.MessageDescriptors) {
	for i := 0; i < mds.Len(); i++ {
		md := mds.Get(i)
		p.registerExtensions(md.Extensions())
		p.registerMessages(md.Messages())
	}
}

func (p *Pool) registerExtensions(xds protoreflect.ExtensionDescriptors) {
	for i := 0; i < xds.Len(); i++ {
		p.Register(dynamicpb.NewExtensionType(xds.Get(i)))
	}
}

// FindExtensionByName implements the resolver contract the parser consumes.
// It reports protoregistry.NotFound for unregistered names.
func (p *Pool) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	v, ok := p.extensions.Search(art.Key(field))
	if !ok {
		return nil, protoregistry.NotFound
	}
	return v, nil
}

// RangeExtensionsWithPrefix calls f for each registered extension whose full
// name starts with prefix, until f returns false.
func (p *Pool) RangeExtensionsWithPrefix(prefix protoreflect.FullName, f func(protoreflect.ExtensionType) bool) {
	p.extensions.ForEachPrefix(art.Key(prefix), func(node art.Node[protoreflect.ExtensionType]) bool {
		if node.Value() == nil {
			return true
		}
		return f(node.Value())
	})
}

// Len reports the number of registered extensions.
func (p *Pool) Len() int {
	return p.extensions.Size()
}
