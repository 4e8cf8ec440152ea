package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"memtrace/pkg/memlog"
)

func runDecode(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hexArg := fs.String("hex", "", "Encoded record as hex")
	b64Arg := fs.String("base64", "", "Encoded record as standard base64")
	fileArg := fs.String("file", "", "File holding the encoded record (- for stdin)")
	delimited := fs.Bool("delimited", false, "Input is a stream of length-delimited records")
	text := fs.Bool("text", false, "Print the text form instead of JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	data, err := decodeInput(*hexArg, *b64Arg, *fileArg, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "failed to read input: %v\n", err)
		return 2
	}

	emit := func(rec *memlog.RawDeallocation) error {
		if *text {
			_, err := fmt.Fprintln(stdout, rec.String())
			return err
		}
		out, err := rec.MarshalJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", out)
		return err
	}

	if !*delimited {
		rec, err := memlog.Unmarshal(data)
		if err != nil {
			fmt.Fprintf(stderr, "decode error: %v\n", err)
			return 1
		}
		if err := emit(rec); err != nil {
			fmt.Fprintf(stderr, "write output: %v\n", err)
			return 1
		}
		return 0
	}

	r := memlog.NewDelimitedReader(bytes.NewReader(data))
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return 0
		}
		if err != nil {
			fmt.Fprintf(stderr, "decode error: %v\n", err)
			return 1
		}
		if err := emit(rec); err != nil {
			fmt.Fprintf(stderr, "write output: %v\n", err)
			return 1
		}
	}
}

func decodeInput(hexArg, b64Arg, fileArg string, stdin io.Reader) ([]byte, error) {
	set := 0
	for _, v := range []string{hexArg, b64Arg, fileArg} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("only one of -hex, -base64, -file may be set")
	}

	switch {
	case hexArg != "":
		return hex.DecodeString(strings.Join(strings.Fields(hexArg), ""))
	case b64Arg != "":
		return base64.StdEncoding.DecodeString(strings.TrimSpace(b64Arg))
	case fileArg != "" && fileArg != "-":
		return os.ReadFile(fileArg)
	default:
		return io.ReadAll(stdin)
	}
}
