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

// Package prototext parses the protocol buffer text format, the
// human-readable encoding of messages defined alongside the binary wire
// format. Parsing merges into a caller-supplied message: scalars overwrite,
// sub-messages merge in place, repeated and map fields accumulate.
//
// The zero value of Parser parses strictly. The package-level Parse uses it:
//
//	msg, err := prototext.Parse(`name: "Martel Sans" weight: 400`, msg)
//
// Field names resolve against the message's descriptor, so any message with
// reflection support works as a target, dynamic messages included. Schemas
// compiled at runtime can be loaded with the schema package, and extension
// names in [square.bracket] form resolve through the configured Resolver
// (the pool package provides one; protoregistry.GlobalTypes is the default).
package prototext

import (
	"google.golang.org/protobuf/proto"

	"github.com/kralicky/prototext/parser"
)

// ParseError is the error type returned by Parse. It carries the 1-based
// line and column of the failure when one is known.
type ParseError = parser.ParseError

// ExtensionResolver resolves dotted extension names to extension types.
type ExtensionResolver = parser.ExtensionResolver

// Parser configures parsing. The zero value is ready to use and rejects
// every construct the target schema does not declare.
type Parser struct {
	// AllowUnknownExtension skips [a.b.c]-named fields that do not resolve
	// instead of failing.
	AllowUnknownExtension bool
	// AllowFieldNumber permits bare integer field names, resolved by tag.
	AllowFieldNumber bool
	// AllowUnknownField skips undeclared fields instead of failing.
	AllowUnknownField bool
	// Resolver looks up extension names. Nil means protoregistry.GlobalTypes.
	Resolver ExtensionResolver
}

// Parse merges the text-format document text into m and returns m. On error
// the returned message retains every field merged before the failure.
func (p Parser) Parse(text string, m proto.Message) (proto.Message, error) {
	err := parser.Parse(text, m.ProtoReflect(), parser.Options{
		AllowUnknownExtension: p.AllowUnknownExtension,
		AllowFieldNumber:      p.AllowFieldNumber,
		AllowUnknownField:     p.AllowUnknownField,
		Resolver:              p.Resolver,
	})
	return m, err
}

// Parse merges text into m with default options and returns m.
func Parse(text string, m proto.Message) (proto.Message, error) {
	return Parser{}.Parse(text, m)
}
