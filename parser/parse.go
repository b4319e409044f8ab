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

// Package parser implements the tokenizer and the recursive-descent merger
// for the protocol buffer text format. Parsing is schema directed: field
// names are resolved against the target message's descriptor and values are
// decoded into the wire type each field declares. Parsed fields merge into
// the target, so scalars overwrite, sub-messages merge, and repeated and map
// fields accumulate.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
)

// ExtensionResolver resolves the dotted names extension fields carry between
// square brackets in text form. protoregistry.Types, dynamicpb.Types and
// pool.Pool all satisfy it.
type ExtensionResolver interface {
	FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error)
}

// Options configure a single Parse invocation. The zero value parses
// strictly, resolving extensions against protoregistry.GlobalTypes.
type Options struct {
	// AllowUnknownExtension skips fields named by unresolvable [a.b.c]
	// extension paths instead of failing.
	AllowUnknownExtension bool
	// AllowFieldNumber resolves a bare integer field name by numeric tag.
	AllowFieldNumber bool
	// AllowUnknownField skips fields the descriptor does not declare instead
	// of failing.
	AllowUnknownField bool
	// Resolver looks up extension names. Nil means protoregistry.GlobalTypes.
	Resolver ExtensionResolver
}

// Parse splits text on LF and merges every field it contains into msg. The
// first error terminates parsing; fields merged before the error remain set.
func Parse(text string, msg protoreflect.Message, opts Options) error {
	if opts.Resolver == nil {
		opts.Resolver = protoregistry.GlobalTypes
	}
	p := &parser{
		tok:   NewTokenizer(strings.Split(text, "\n")),
		opts:  opts,
		camel: make(map[protoreflect.FullName]map[string]protoreflect.FieldDescriptor),
	}
	for !p.tok.AtEnd() {
		if err := p.mergeField(msg); err != nil {
			return err
		}
	}
	return nil
}

type parser struct {
	tok  *Tokenizer
	opts Options
	// camel-case field index, built lazily per message descriptor
	camel map[protoreflect.FullName]map[string]protoreflect.FieldDescriptor
}

// mergeField consumes one name/value pair (or skips it, when permitted) and
// applies it to msg, then discards an optional trailing comma.
func (p *parser) mergeField(msg protoreflect.Message) error {
	md := msg.Descriptor()
	var fd protoreflect.FieldDescriptor

	if p.tok.TryConsume("[") {
		name, err := p.consumeExtensionName()
		if err != nil {
			return err
		}
		xt, err := p.opts.Resolver.FindExtensionByName(protoreflect.FullName(name))
		if err != nil {
			if p.opts.AllowUnknownExtension {
				return p.skipFieldContentsAndSeparators()
			}
			return p.tok.ErrorfAtPrevious("Extension %q not found.", name)
		}
		xd := xt.TypeDescriptor()
		if xd.ContainingMessage().FullName() != md.FullName() {
			return p.tok.ErrorfAtPrevious("Extension %q does not extend message type %q.", name, md.FullName())
		}
		fd = xd
	} else {
		name, err := p.tok.ConsumeIdentifierOrNumber()
		if err != nil {
			return err
		}
		fd = p.resolveField(md, name)
		if fd == nil {
			if p.opts.AllowUnknownField {
				return p.skipFieldContentsAndSeparators()
			}
			return p.tok.ErrorfAtPrevious("Message type %q has no field named %q.", md.FullName(), name)
		}
	}

	var err error
	switch {
	case fd.IsMap():
		err = p.mergeMapField(msg, fd)
	case fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind:
		err = p.mergeMessageField(msg, fd)
	case fd.Kind() == protoreflect.EnumKind:
		err = p.mergeEnumField(msg, fd)
	default:
		err = p.mergeScalarField(msg, fd)
	}
	if err != nil {
		return err
	}
	p.tok.TryConsume(",")
	return nil
}

// resolveField maps a plain field name token onto a descriptor: by numeric
// tag when permitted, by camel-case name otherwise, falling back to the
// lowercased name for group-style fields whose text name is the capitalized
// name of their message type.
func (p *parser) resolveField(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	if p.opts.AllowFieldNumber && isDigits(name) {
		n, err := strconv.ParseInt(name, 10, 32)
		if err != nil {
			return nil
		}
		return md.Fields().ByNumber(protoreflect.FieldNumber(n))
	}
	if fd := p.fieldByCamelName(md, camelCase(name)); fd != nil {
		return fd
	}
	fd := md.Fields().ByName(protoreflect.Name(strings.ToLower(name)))
	if fd != nil && fd.Message() != nil && string(fd.Message().Name()) == name {
		return fd
	}
	return nil
}

func (p *parser) fieldByCamelName(md protoreflect.MessageDescriptor, name string) protoreflect.FieldDescriptor {
	idx, ok := p.camel[md.FullName()]
	if !ok {
		fields := md.Fields()
		idx = make(map[string]protoreflect.FieldDescriptor, fields.Len())
		for i := 0; i < fields.Len(); i++ {
			fd := fields.Get(i)
			idx[camelCase(string(fd.Name()))] = fd
		}
		p.camel[md.FullName()] = idx
	}
	return idx[name]
}

// consumeExtensionName reads the dotted path of an already-opened [a.b.c]
// field name, including the closing bracket.
func (p *parser) consumeExtensionName() (string, error) {
	var b strings.Builder
	id, err := p.tok.ConsumeIdentifier()
	if err != nil {
		return "", err
	}
	b.WriteString(id)
	for p.tok.TryConsume(".") {
		if id, err = p.tok.ConsumeIdentifier(); err != nil {
			return "", err
		}
		b.WriteByte('.')
		b.WriteString(id)
	}
	if err := p.tok.Consume("]"); err != nil {
		return "", err
	}
	return b.String(), nil
}

// consumeMessageDelimiter consumes an opening message delimiter and returns
// the closing one that must match it.
func (p *parser) consumeMessageDelimiter() (string, error) {
	if p.tok.TryConsume("<") {
		return ">", nil
	}
	if err := p.tok.Consume("{"); err != nil {
		return "", err
	}
	return "}", nil
}

func (p *parser) mergeMessageField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	p.tok.TryConsume(":") // colon is optional before a message value
	if fd.IsList() {
		if p.tok.TryConsume("[") {
			if p.tok.TryConsume("]") {
				// an empty list leaves the field absent
				return nil
			}
			list := msg.Mutable(fd).List()
			for {
				if err := p.mergeMessageValue(list.AppendMutable().Message()); err != nil {
					return err
				}
				if !p.tok.TryConsume(",") {
					break
				}
			}
			return p.tok.Consume("]")
		}
		return p.mergeMessageValue(msg.Mutable(fd).List().AppendMutable().Message())
	}
	// singular message fields merge into the existing value, if any
	return p.mergeMessageValue(msg.Mutable(fd).Message())
}

func (p *parser) mergeMessageValue(msg protoreflect.Message) error {
	end, err := p.consumeMessageDelimiter()
	if err != nil {
		return err
	}
	return p.mergeMessageBody(msg, end)
}

func (p *parser) mergeMessageBody(msg protoreflect.Message, end string) error {
	for !p.tok.TryConsume(end) {
		if p.tok.AtEnd() {
			return p.tok.Errorf("Expected %q.", end)
		}
		if err := p.mergeField(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) mergeEnumField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	if err := p.tok.Consume(":"); err != nil {
		return err
	}
	if fd.IsList() {
		if p.tok.TryConsume("[") {
			if p.tok.TryConsume("]") {
				return nil
			}
			list := msg.Mutable(fd).List()
			for {
				n, err := p.consumeEnumValue(fd.Enum())
				if err != nil {
					return err
				}
				list.Append(protoreflect.ValueOfEnum(n))
				if !p.tok.TryConsume(",") {
					break
				}
			}
			return p.tok.Consume("]")
		}
		n, err := p.consumeEnumValue(fd.Enum())
		if err != nil {
			return err
		}
		msg.Mutable(fd).List().Append(protoreflect.ValueOfEnum(n))
		return nil
	}
	n, err := p.consumeEnumValue(fd.Enum())
	if err != nil {
		return err
	}
	msg.Set(fd, protoreflect.ValueOfEnum(n))
	return nil
}

// consumeEnumValue accepts either a number, which passes through even when
// the enum declares no such value, or a symbolic name, which must resolve.
func (p *parser) consumeEnumValue(ed protoreflect.EnumDescriptor) (protoreflect.EnumNumber, error) {
	tok := p.tok.Token()
	if n, err := parseSignedInteger(tok, 32); err == nil {
		p.tok.NextToken()
		return protoreflect.EnumNumber(n), nil
	}
	id, err := p.tok.ConsumeIdentifier()
	if err != nil {
		return 0, err
	}
	vd := ed.Values().ByName(protoreflect.Name(id))
	if vd == nil {
		return 0, &ParseError{Message: fmt.Sprintf("Enum type %q has no value named %s.", ed.FullName(), id)}
	}
	return vd.Number(), nil
}

func (p *parser) mergeScalarField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	if err := p.tok.Consume(":"); err != nil {
		return err
	}
	if fd.IsList() {
		if p.tok.TryConsume("[") {
			if p.tok.TryConsume("]") {
				return nil
			}
			list := msg.Mutable(fd).List()
			for {
				v, err := p.consumeScalarValue(fd)
				if err != nil {
					return err
				}
				list.Append(v)
				if !p.tok.TryConsume(",") {
					break
				}
			}
			return p.tok.Consume("]")
		}
		v, err := p.consumeScalarValue(fd)
		if err != nil {
			return err
		}
		msg.Mutable(fd).List().Append(v)
		return nil
	}
	v, err := p.consumeScalarValue(fd)
	if err != nil {
		return err
	}
	msg.Set(fd, v)
	return nil
}

func (p *parser) consumeScalarValue(fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.DoubleKind:
		v, err := p.tok.ConsumeFloat()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat64(v), nil
	case protoreflect.FloatKind:
		v, err := p.tok.ConsumeFloat()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat32(float32(v)), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		v, err := p.tok.ConsumeInt32()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt32(v), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		v, err := p.tok.ConsumeUint32()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint32(v), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		v, err := p.tok.ConsumeInt64()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(v), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		v, err := p.tok.ConsumeUint64()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(v), nil
	case protoreflect.BoolKind:
		v, err := p.tok.ConsumeBool()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBool(v), nil
	case protoreflect.StringKind:
		v, err := p.tok.ConsumeString()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfString(v), nil
	case protoreflect.BytesKind:
		v, err := p.tok.ConsumeByteString()
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfBytes(v), nil
	}
	return protoreflect.Value{}, p.tok.Errorf("Unknown scalar type: %v.", fd.Kind())
}

func (p *parser) mergeMapField(msg protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	p.tok.TryConsume(":") // colon is optional before a map entry
	if p.tok.TryConsume("[") {
		if p.tok.TryConsume("]") {
			return nil
		}
		for {
			if err := p.mergeMapEntry(msg, fd); err != nil {
				return err
			}
			if !p.tok.TryConsume(",") {
				break
			}
		}
		return p.tok.Consume("]")
	}
	return p.mergeMapEntry(msg, fd)
}

// mergeMapEntry parses one {key: ... value: ...} entry. The subfields may
// come in either order and either may be omitted, defaulting the missing
// side; an entirely empty body inserts nothing. Insertion replaces any prior
// value under the same key.
func (p *parser) mergeMapEntry(msg protoreflect.Message, fd protoreflect.FieldDescriptor) error {
	end, err := p.consumeMessageDelimiter()
	if err != nil {
		return err
	}
	var (
		keyFD   = fd.MapKey()
		valFD   = fd.MapValue()
		mp      = msg.Mutable(fd).Map()
		key     protoreflect.Value
		val     protoreflect.Value
		haveKey bool
		haveVal bool
	)
	for !p.tok.TryConsume(end) {
		if p.tok.AtEnd() {
			return p.tok.Errorf("Expected %q.", end)
		}
		switch {
		case p.tok.TryConsume("key"):
			if err := p.tok.Consume(":"); err != nil {
				return err
			}
			if key, err = p.consumeScalarValue(keyFD); err != nil {
				return err
			}
			haveKey = true
		case p.tok.TryConsume("value"):
			if valFD.Message() != nil {
				p.tok.TryConsume(":")
				val = mp.NewValue()
				if err := p.mergeMessageValue(val.Message()); err != nil {
					return err
				}
			} else {
				if err := p.tok.Consume(":"); err != nil {
					return err
				}
				if val, err = p.consumeMapScalarValue(valFD); err != nil {
					return err
				}
			}
			haveVal = true
		default:
			return p.tok.Errorf("Unexpected field in map entry: %s.", p.tok.Token())
		}
		p.tok.TryConsume(",")
	}
	if !haveKey && !haveVal {
		return nil
	}
	if !haveKey {
		key = keyFD.Default()
	}
	if !haveVal {
		if valFD.Message() != nil {
			val = mp.NewValue()
		} else {
			val = valFD.Default()
		}
	}
	mp.Set(key.MapKey(), val)
	return nil
}

func (p *parser) consumeMapScalarValue(fd protoreflect.FieldDescriptor) (protoreflect.Value, error) {
	if fd.Kind() == protoreflect.EnumKind {
		n, err := p.consumeEnumValue(fd.Enum())
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfEnum(n), nil
	}
	return p.consumeScalarValue(fd)
}

// skipFieldContentsAndSeparators skips the value of a field whose name was
// already consumed, then any trailing separator.
func (p *parser) skipFieldContentsAndSeparators() error {
	if err := p.skipFieldContents(); err != nil {
		return err
	}
	if !p.tok.TryConsume(",") {
		p.tok.TryConsume(";")
	}
	return nil
}

func (p *parser) skipFieldContents() error {
	if p.tok.TryConsume(":") && !p.tok.LookingAt("{") && !p.tok.LookingAt("<") {
		if p.tok.LookingAt("[") {
			return p.skipRepeatedFieldValue()
		}
		return p.skipFieldValue()
	}
	return p.skipFieldMessage()
}

func (p *parser) skipFieldValue() error {
	if !p.tok.TryConsumeAnyScalar() {
		return p.tok.Errorf("Invalid field value: %s", p.tok.Token())
	}
	return nil
}

func (p *parser) skipRepeatedFieldValue() error {
	if err := p.tok.Consume("["); err != nil {
		return err
	}
	if p.tok.TryConsume("]") {
		return nil
	}
	for {
		var err error
		if p.tok.LookingAt("{") || p.tok.LookingAt("<") {
			err = p.skipFieldMessage()
		} else {
			err = p.skipFieldValue()
		}
		if err != nil {
			return err
		}
		if !p.tok.TryConsume(",") {
			break
		}
	}
	return p.tok.Consume("]")
}

func (p *parser) skipFieldMessage() error {
	end, err := p.consumeMessageDelimiter()
	if err != nil {
		return err
	}
	for !p.tok.LookingAt(end) {
		if p.tok.AtEnd() {
			return p.tok.Errorf("Expected %q.", end)
		}
		if err := p.skipField(); err != nil {
			return err
		}
	}
	return p.tok.Consume(end)
}

// skipField consumes one entire unknown field, name included.
func (p *parser) skipField() error {
	if p.tok.TryConsume("[") {
		if _, err := p.consumeExtensionName(); err != nil {
			return err
		}
	} else if _, err := p.tok.ConsumeIdentifierOrNumber(); err != nil {
		return err
	}
	return p.skipFieldContentsAndSeparators()
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// camelCase drops underscores, uppercasing the ASCII lowercase letter that
// follows each one.
func camelCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	up := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			up = true
			continue
		}
		if up && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		up = false
		b.WriteByte(c)
	}
	return b.String()
}
