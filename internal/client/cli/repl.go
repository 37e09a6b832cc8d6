package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Info(ctx context.Context) error
	Ping(ctx context.Context) error
	RequestUploadRights(ctx context.Context, args []string) error
	NewBulletin(ctx context.Context) error
	Folders(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	CreateFolder(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Discard(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Send(ctx context.Context) error
	Retrieve(ctx context.Context) error
	PurgeServerDrafts(ctx context.Context, args []string) error
	Offices(ctx context.Context) error
	Peek(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  info                       account, public code and server
  ping                       check the server
  rights <magic word>        ask the server for upload rights
  new                        write a bulletin
  folders                    list folders
  (l)ist <folder>            list the bulletins of a folder
  show <id>                  print a bulletin
  mkfolder <name>            create a folder
  move <id> <from> <to>      move a bulletin between folders
  discard <folder> <id>      discard a bulletin
  search <text> [from [to]]  search by text and event date (YYYY-MM-DD)
  send                       upload everything waiting in the outboxes
  retrieve                   download my sealed bulletins from the server
  purge <id>...              delete my drafts from the server
  offices                    list field offices that report to me
  peek <account> <id>        print the public fields of a server bulletin
  export <id|folder>         write an archive, or a folder as XML
  import <file> [folder]     import an archive
  exit | quit                leave the program`

// runREPL starts a simple read–eval–print loop for the bulletin client.
//
// It reads a line from the provided scanner, parses the first token as the
// command and passes the remaining tokens to the matching method on 'a'.
// Errors returned by commands are printed and the loop continues. The loop
// exits on scanner EOF or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("bk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "info":
			err = a.Info(ctx)
		case "ping":
			err = a.Ping(ctx)
		case "rights":
			err = a.RequestUploadRights(ctx, args)
		case "new":
			err = a.NewBulletin(ctx)
		case "folders":
			err = a.Folders(ctx)
		case "l", "list":
			err = a.List(ctx, args)
		case "show":
			err = a.Show(ctx, args)
		case "mkfolder":
			err = a.CreateFolder(ctx, args)
		case "move":
			err = a.Move(ctx, args)
		case "discard":
			err = a.Discard(ctx, args)
		case "search":
			err = a.Search(ctx, args)
		case "send":
			err = a.Send(ctx)
		case "retrieve":
			err = a.Retrieve(ctx)
		case "purge":
			err = a.PurgeServerDrafts(ctx, args)
		case "offices":
			err = a.Offices(ctx)
		case "peek":
			err = a.Peek(ctx, args)
		case "export":
			err = a.Export(ctx, args)
		case "import":
			err = a.Import(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
