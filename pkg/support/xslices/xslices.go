/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package xslices provide missing functionality to the slices package, for now command line flags holding
// lists of values.
package xslices

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FlagSetVar creates a flag for []T with the given name, description and default value, registered in fs.
// The flag value is a comma-separated list, and each element is parsed with parserFn.
// Setting the flag to an empty string gives an empty list.
func FlagSetVar[T any](fs *flag.FlagSet, name string, defaultValue []T, usage string,
	parserFn func(valueStr string) (T, error)) *[]T {
	f := &listFlag[T]{
		parsed:   defaultValue,
		parserFn: parserFn,
	}
	fs.Var(f, name, usage)
	return &f.parsed
}

// ParseFloat64 parses one float64 value, ignoring surrounding spaces. It can be used as the parser of FlagSetVar.
func ParseFloat64(valueStr string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
}

// listFlag implements flag.Value for a list of T.
type listFlag[T any] struct {
	parsed   []T
	parserFn func(valueStr string) (T, error)
}

func (f *listFlag[T]) String() string {
	if f == nil || len(f.parsed) == 0 {
		return ""
	}
	parts := make([]string, len(f.parsed))
	for ii, elem := range f.parsed {
		if stringer, ok := any(elem).(fmt.Stringer); ok {
			parts[ii] = stringer.String()
		} else {
			parts[ii] = fmt.Sprintf("%v", elem)
		}
	}
	return strings.Join(parts, ",")
}

func (f *listFlag[T]) Set(listStr string) error {
	if listStr == "" {
		f.parsed = make([]T, 0)
		return nil
	}
	parts := strings.Split(listStr, ",")
	parsed := make([]T, len(parts))
	for ii, part := range parts {
		var err error
		parsed[ii], err = f.parserFn(part)
		if err != nil {
			return errors.Wrapf(err, "element #%d (%q) of list", ii, part)
		}
	}
	f.parsed = parsed
	return nil
}
