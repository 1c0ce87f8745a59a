// Package main provides the docmap command line tool for inspecting and
// maintaining a document id mapping database.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/andreyvit/docmap"
)

// Version is the tool version (can be overridden at build time).
var Version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type env struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	args    string
	help    string
	minArgs int
	maxArgs int // -1 for unlimited
	fn      func(e *env, db *docmap.DB, m docmap.Mapping, args []string) error
}

var commands = []*command{
	{"put", "<id> <user-id>", "associate a user id with a document id", 2, 2, cmdPut},
	{"get", "<id>", "print the user id of a document", 1, 1, cmdGet},
	{"del", "<id>", "delete a document id", 1, 1, cmdDel},
	{"clear", "", "delete all entries", 0, 0, cmdClear},
	{"list", "[<from-id>]", "list entries in document id order", 0, 1, cmdList},
	{"next", "<count>", "print the next available document ids", 1, 1, cmdNext},
	{"alloc", "<user-id>...", "assign fresh document ids to user ids", 1, -1, cmdAlloc},
	{"export", "<file|->", "write a dump of the mapping", 1, 1, cmdExport},
	{"import", "<file|->", "replace the mapping with the contents of a dump", 1, 1, cmdImport},
	{"stats", "", "print mapping statistics", 0, 0, cmdStats},
	{"dump", "", "print a debugging dump of the database", 0, 0, cmdDump},
}

func findCommand(name string) *command {
	for _, c := range commands {
		if c.name == name {
			return c
		}
	}
	return nil
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	e := &env{stdin, stdout, stderr}

	configFile := ""
	verbose := false
	var i int
	for i = 0; i < len(args); i++ {
		arg := args[i]
		if arg == "" || arg[0] != '-' || arg == "-" {
			break
		}
		switch arg {
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintf(stderr, "Error: missing value for %s\n", arg)
				return 2
			}
			configFile = args[i+1]
			i++
		case "-v", "--verbose":
			verbose = true
		case "-h", "--help":
			printUsage(stdout)
			return 0
		default:
			fmt.Fprintf(stderr, "Error: unknown flag: %s\n", arg)
			printUsage(stderr)
			return 2
		}
	}
	args = args[i:]
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	name, args := args[0], args[1:]
	switch name {
	case "version":
		fmt.Fprintf(stdout, "docmap version %s\n", Version)
		return 0
	case "help":
		printUsage(stdout)
		return 0
	}

	cmd := findCommand(name)
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n", name)
		printUsage(stderr)
		return 2
	}
	if len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs) {
		fmt.Fprintf(stderr, "Usage: docmap %s %s\n", cmd.name, cmd.args)
		return 2
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if verbose {
		cfg.Verbose = true
		cfg.Log.Level = "debug"
	}

	if err := execute(e, cfg, cmd, args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func execute(e *env, cfg *Config, cmd *command, args []string) error {
	logger := cfg.Log.NewLogger(e.stderr)

	schema := &docmap.Schema{}
	m := docmap.AddMapping(schema, cfg.Mapping)

	db, err := docmap.Open(cfg.Path, schema, cfg.options(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("close failed", "err", err)
		}
	}()
	logger.Debug("opened database", "path", cfg.Path, "backend", cfg.Backend, "mapping", cfg.Mapping)

	return cmd.fn(e, db, m, args)
}

func parseID(s string) (docmap.DocumentID, error) {
	id, err := docmap.ParseDocumentID(s)
	if err != nil {
		return 0, fmt.Errorf("invalid document id %q", s)
	}
	return id, nil
}

func cmdPut(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return db.Write(func(tx *docmap.WriteTx) error {
		return m.Put(tx, id, args[1])
	})
}

var errNotFound = errors.New("not found")

func cmdGet(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return db.Read(func(tx *docmap.Tx) error {
		userID, ok, err := m.Lookup(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("document %d: %w", id, errNotFound)
		}
		fmt.Fprintln(e.stdout, userID)
		return nil
	})
}

func cmdDel(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return db.Write(func(tx *docmap.WriteTx) error {
		existed, err := m.Delete(tx, id)
		if err != nil {
			return err
		}
		if !existed {
			return fmt.Errorf("document %d: %w", id, errNotFound)
		}
		return nil
	})
}

func cmdClear(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	return db.Write(func(tx *docmap.WriteTx) error {
		return m.Clear(tx)
	})
}

func cmdList(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	return db.Read(func(tx *docmap.Tx) error {
		var c *docmap.Cursor
		if len(args) > 0 {
			from, err := parseID(args[0])
			if err != nil {
				return err
			}
			c = m.IterateFrom(tx, from)
		} else {
			c = m.Iterate(tx)
		}
		w := bufio.NewWriter(e.stdout)
		for id, userID := range c.All() {
			fmt.Fprintf(w, "%d\t%s\n", id, userID)
		}
		if err := c.Err(); err != nil {
			w.Flush()
			return err
		}
		return w.Flush()
	})
}

func cmdNext(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 0 {
		return fmt.Errorf("invalid count %q", args[0])
	}
	return db.Read(func(tx *docmap.Tx) error {
		ids, err := m.NextAvailableDocumentIDs(tx, count)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(e.stdout, id)
		}
		return nil
	})
}

func cmdAlloc(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	var ids []docmap.DocumentID
	err := db.Write(func(tx *docmap.WriteTx) error {
		var err error
		ids, err = m.AllocateAndPut(tx, args...)
		return err
	})
	if err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Fprintf(e.stdout, "%d\t%s\n", id, args[i])
	}
	return nil
}

func cmdExport(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	var w io.Writer = e.stdout
	var f *os.File
	if args[0] != "-" {
		var err error
		f, err = os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)

	var n int
	err := db.Read(func(tx *docmap.Tx) error {
		var err error
		n, err = m.Export(tx, bw)
		return err
	})
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if f != nil {
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "exported %d entries to %s\n", n, args[0])
	}
	return nil
}

func cmdImport(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	var r io.Reader = e.stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var n int
	err := db.Write(func(tx *docmap.WriteTx) error {
		var err error
		n, err = m.Import(tx, bufio.NewReader(r))
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stderr, "imported %d entries\n", n)
	return nil
}

func cmdStats(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	return db.Read(func(tx *docmap.Tx) error {
		s, err := m.Stats(tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "mapping:    %s\n", m.Name())
		fmt.Fprintf(e.stdout, "count:      %d\n", s.Count)
		fmt.Fprintf(e.stdout, "min_id:     %d\n", s.MinID)
		fmt.Fprintf(e.stdout, "max_id:     %d\n", s.MaxID)
		fmt.Fprintf(e.stdout, "free:       %d\n", s.Free)
		fmt.Fprintf(e.stdout, "data_size:  %d\n", s.DataSize)
		fmt.Fprintf(e.stdout, "data_alloc: %d\n", s.DataAlloc)
		return nil
	})
}

func cmdDump(e *env, db *docmap.DB, m docmap.Mapping, args []string) error {
	return db.Read(func(tx *docmap.Tx) error {
		_, err := io.WriteString(e.stdout, tx.Dump(docmap.DumpAll))
		return err
	})
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "docmap - document id mapping tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  docmap [-c config.yml] [-v] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %-16s %s\n", c.name, c.args, c.help)
	}
	fmt.Fprintf(w, "  %-8s %-16s %s\n", "version", "", "print the version")
	fmt.Fprintf(w, "  %-8s %-16s %s\n", "help", "", "show this help")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  DOCMAP_PATH      overrides the database path")
	fmt.Fprintln(w, "  DOCMAP_BACKEND   overrides the backend (bolt, leveldb, memory)")
}
