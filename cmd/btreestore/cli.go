package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	bts "btreestore"
)

var log = logrus.New()

func usage(w *readline.Instance) {
	w.Stderr().Write([]byte(`
Available commands:
	add <int>
	find <int>
	delete <int>
	all
	dump
	set-log-level <log-level>
	exit
`[1:]))
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("add"),
	readline.PcItem("find"),
	readline.PcItem("delete"),
	readline.PcItem("all"),
	readline.PcItem("dump"),
	readline.PcItem("help"),
	readline.PcItem("set-log-level",
		readline.PcItem("debug"),
		readline.PcItem("info"),
		readline.PcItem("warn"),
	),
	readline.PcItem("exit"),
)

// Run starts the interactive loop, grounded on simplejsondb/cli.Run's
// structure: readline prompt, prefix dispatch, log redirected to the
// readline instance's stderr so prompt redraws don't interleave with it.
func Run() {
	log.SetLevel(logrus.WarnLevel)
	log.SetOutput(os.Stderr)

	l, err := readline.NewEx(&readline.Config{
		Prompt:       "\033[31m»\033[0m ",
		HistoryFile:  "/tmp/btreestore-readline.tmp",
		AutoComplete: completer,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()

	path := "btreestore.dat"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	tree, err := bts.NewBuilder(bts.Int64Codec()).Path(path).Build()
	if err != nil {
		panic(err)
	}

	log.SetOutput(l.Stderr())
	for {
		line, err := l.Readline()
		if err != nil {
			break
		}
		switch {
		case strings.HasPrefix(line, "set-log-level "):
			setLogLevel(line[len("set-log-level "):])
		case strings.HasPrefix(line, "add "):
			add(tree, line[len("add "):])
		case strings.HasPrefix(line, "find "):
			find(tree, line[len("find "):])
		case strings.HasPrefix(line, "delete "):
			deleteValue(tree, line[len("delete "):])
		case line == "all":
			all(tree)
		case line == "dump":
			dumpCmd(path)
		case line == "help":
			usage(l)
		case line == "exit":
			return
		case line == "":
		default:
			log.Error("Unknown command: ", strconv.Quote(line))
		}
	}
}

func setLogLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		log.Error("invalid log level: ", level)
		return
	}
	log.SetLevel(lvl)
}

func add(tree *bts.BTree[bts.Int64Value], arg string) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		log.Error(err)
		return
	}
	if err := tree.Add(bts.Int64Value(n)); err != nil {
		log.Error(err)
	}
}

func find(tree *bts.BTree[bts.Int64Value], arg string) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		log.Error(err)
		return
	}
	v, ok, err := tree.Find(bts.Int64Value(n))
	if err != nil {
		log.Error(err)
		return
	}
	if !ok {
		fmt.Println("not found")
		return
	}
	fmt.Println(int64(v))
}

func deleteValue(tree *bts.BTree[bts.Int64Value], arg string) {
	n, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		log.Error(err)
		return
	}
	count, err := tree.Delete(bts.Int64Value(n))
	if err != nil {
		log.Error(err)
		return
	}
	fmt.Println(count, "marked deleted")
}

func all(tree *bts.BTree[bts.Int64Value]) {
	values, err := tree.Iterate().All()
	if err != nil {
		log.Error(err)
		return
	}
	for _, v := range values {
		fmt.Println(int64(v))
	}
}
