// Command ubjson converts in between JSON and UBJSON.
//
//	ubjson fromjson [-count] [-sort] [infile [outfile]]
//	ubjson tojson [infile [outfile]]
//
// infile and outfile default to stdin and stdout; "-" selects them
// explicitly.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/kisielk/ubjson"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ubjson fromjson [-count] [-sort] [infile [outfile]]
       ubjson tojson [infile [outfile]]
`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch os.Args[1] {
	case "fromjson":
		fs := flag.NewFlagSet("fromjson", flag.ExitOnError)
		count := fs.Bool("count", false, "emit container count headers")
		sortKeys := fs.Bool("sort", false, "sort object keys")
		fs.Parse(os.Args[2:])
		in, out, ferr := openFiles(fs.Args())
		if ferr != nil {
			err = ferr
			break
		}
		defer closeFiles(in, out)
		err = fromJSON(in, out, &ubjson.EncoderConfig{
			ContainerCount: *count,
			SortKeys:       *sortKeys,
			NoFloat32:      true,
		})

	case "tojson":
		fs := flag.NewFlagSet("tojson", flag.ExitOnError)
		fs.Parse(os.Args[2:])
		in, out, ferr := openFiles(fs.Args())
		if ferr != nil {
			err = ferr
			break
		}
		defer closeFiles(in, out)
		err = toJSON(in, out)

	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "ubjson: %s\n", err)
		os.Exit(1)
	}
}

func openFiles(args []string) (in, out *os.File, err error) {
	if len(args) > 2 {
		usage()
	}
	in, out = os.Stdin, os.Stdout
	if len(args) >= 1 && args[0] != "-" {
		if in, err = os.Open(args[0]); err != nil {
			return nil, nil, err
		}
	}
	if len(args) == 2 && args[1] != "-" {
		if out, err = os.Create(args[1]); err != nil {
			return nil, nil, err
		}
	}
	return in, out, nil
}

func closeFiles(in, out *os.File) {
	if in != os.Stdin {
		in.Close()
	}
	if out != os.Stdout {
		out.Close()
	}
}

// fromJSON decodes one JSON value from r and writes its UBJSON encoding
// to w. Object key order and the integer/float distinction are preserved;
// integers beyond int64 travel as high-precision decimals.
func fromJSON(r io.Reader, w io.Writer, config *ubjson.EncoderConfig) error {
	iter := jsoniter.Parse(jsoniter.ConfigDefault, r, 4096)
	v := readJSONValue(iter)
	if iter.Error != nil && iter.Error != io.EOF {
		return iter.Error
	}
	return ubjson.NewEncoderWithConfig(w, config).Encode(v)
}

func readJSONValue(iter *jsoniter.Iterator) any {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return nil
	case jsoniter.BoolValue:
		return iter.ReadBool()
	case jsoniter.NumberValue:
		n := iter.ReadNumber()
		s := n.String()
		if !strings.ContainsAny(s, ".eE") {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			return ubjson.HighPrec(s)
		}
		f, err := n.Float64()
		if err != nil {
			iter.ReportError("readJSONValue", err.Error())
			return nil
		}
		return f
	case jsoniter.StringValue:
		return iter.ReadString()
	case jsoniter.ArrayValue:
		list := []any{}
		for iter.ReadArray() {
			list = append(list, readJSONValue(iter))
		}
		return list
	case jsoniter.ObjectValue:
		obj := ubjson.NewObject()
		iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
			obj.Set(field, readJSONValue(it))
			return it.Error == nil
		})
		return obj
	default:
		iter.ReportError("readJSONValue", "invalid JSON value")
		return nil
	}
}

// toJSON decodes one UBJSON value from r and writes it as JSON to w.
func toJSON(r io.Reader, w io.Writer) error {
	v, err := ubjson.NewDecoder(r).Decode()
	if err != nil {
		return err
	}
	stream := jsoniter.NewStream(jsoniter.ConfigDefault, w, 4096)
	if err := writeJSONValue(stream, v); err != nil {
		return err
	}
	stream.WriteRaw("\n")
	stream.Flush()
	return stream.Error
}

func writeJSONValue(stream *jsoniter.Stream, v any) error {
	switch x := v.(type) {
	case nil:
		stream.WriteNil()
	case bool:
		stream.WriteBool(x)
	case int64:
		stream.WriteInt64(x)
	case float32:
		stream.WriteFloat32(x)
	case float64:
		stream.WriteFloat64(x)
	case ubjson.HighPrec:
		// only finite decimals are valid JSON numbers
		f, _, err := big.ParseFloat(string(x), 10, 64, big.ToNearestEven)
		if err != nil || f.IsInf() {
			return fmt.Errorf("cannot represent %q as a JSON number", string(x))
		}
		stream.WriteRaw(string(x))
	case string:
		stream.WriteString(x)
	case []byte:
		return fmt.Errorf("cannot convert bytes to JSON")
	case []any:
		stream.WriteArrayStart()
		for i, el := range x {
			if i > 0 {
				stream.WriteMore()
			}
			if err := writeJSONValue(stream, el); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	case *ubjson.Object:
		stream.WriteObjectStart()
		var err error
		i := 0
		x.Iter()(func(k string, v any) bool {
			if i > 0 {
				stream.WriteMore()
			}
			i++
			stream.WriteObjectField(k)
			err = writeJSONValue(stream, v)
			return err == nil
		})
		if err != nil {
			return err
		}
		stream.WriteObjectEnd()
	default:
		return fmt.Errorf("cannot convert %T to JSON", v)
	}
	return nil
}
