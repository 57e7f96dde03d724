package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rihuaaaaa/laura-db/pkg/engine"
	"github.com/rihuaaaaa/laura-db/pkg/lockmgr"
	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

const (
	version = "0.1.0"
	banner  = `
laura-cli v%s — a REPL over the buffer pool, hash index, and lock manager

Type 'help' for available commands
Type 'exit' or 'quit' to exit

`
)

// CLI is a REPL over an Engine. Unlike the document-database CLI this
// module used to ship, there is no collection/JSON layer to navigate —
// every command operates directly on pages, hash table keys, or locks,
// mirroring what spec.md actually specifies.
type CLI struct {
	eng     *engine.Engine
	txn     *lockmgr.Transaction
	scanner *bufio.Scanner
}

func NewCLI(dataDir string) (*CLI, error) {
	config := engine.DefaultConfig()
	config.DataDir = dataDir

	eng, err := engine.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	return &CLI{
		eng:     eng,
		scanner: bufio.NewScanner(os.Stdin),
	}, nil
}

func (c *CLI) Close() error {
	return c.eng.Close()
}

func (c *CLI) Run() error {
	fmt.Printf(banner, version)

	for {
		fmt.Print("laura> ")
		if !c.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}

		if err := c.executeCommand(line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("Goodbye!")
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
	}

	return c.scanner.Err()
}

func (c *CLI) executeCommand(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		return c.showHelp()
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "new":
		return c.newPage()
	case "fetch":
		return c.fetchPage(args)
	case "unpin":
		return c.unpinPage(args)
	case "flush":
		return c.flushPage(args)
	case "flushall":
		return c.flushAll()
	case "get":
		return c.hashGet(args)
	case "insert":
		return c.hashInsert(args)
	case "remove":
		return c.hashRemove(args)
	case "depth":
		return c.globalDepth()
	case "begin":
		return c.beginTxn(args)
	case "lock-shared":
		return c.lockShared(args)
	case "lock-exclusive":
		return c.lockExclusive(args)
	case "lock-upgrade":
		return c.lockUpgrade(args)
	case "unlock":
		return c.unlockResource(args)
	case "stats":
		return c.showStats()
	case "clear":
		fmt.Print("\033[H\033[2J")
		return nil
	case "version":
		fmt.Printf("laura-cli version %s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func (c *CLI) showHelp() error {
	help := `
laura-cli Commands:

Basic Commands:
  help, ?                  Show this help message
  exit, quit               Exit the CLI
  clear                    Clear the screen
  version                  Show CLI version
  stats                    Show buffer pool and hash index stats

Buffer Pool:
  new                      Allocate a new page, print its id
  fetch <page-id>          Fetch a page into the buffer pool
  unpin <page-id> [dirty]  Unpin a page, optionally marking it dirty
  flush <page-id>          Flush one page to disk
  flushall                 Flush every dirty page to disk

Hash Index:
  get <key>                Print every value stored under key
  insert <key> <value>     Insert (key, value)
  remove <key> <value>     Remove (key, value)
  depth                    Print the hash index's global depth

Lock Manager (tuple-granularity, strict 2PL + Wound-Wait):
  begin [iso]              Start a transaction; iso is one of
                            read-uncommitted, read-committed, repeatable-read
  lock-shared <resource>   Acquire a shared lock for the active transaction
  lock-exclusive <resource> Acquire an exclusive lock
  lock-upgrade <resource>  Upgrade a held shared lock to exclusive
  unlock <resource>        Release a lock
`
	fmt.Println(help)
	return nil
}

func (c *CLI) newPage() error {
	page, err := c.eng.DataPool().NewPage()
	if err != nil {
		return err
	}
	fmt.Printf("allocated page %d\n", page.ID)
	return nil
}

func parsePageID(args []string) (storage.PageID, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing page id")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid page id: %w", err)
	}
	return storage.PageID(id), nil
}

func (c *CLI) fetchPage(args []string) error {
	id, err := parsePageID(args)
	if err != nil {
		return err
	}
	page, err := c.eng.DataPool().Fetch(id)
	if err != nil {
		return err
	}
	fmt.Printf("page %d: dirty=%v pin_count=%d bytes=%d\n", page.ID, page.IsDirty, page.PinCount, len(page.Data))
	return nil
}

func (c *CLI) unpinPage(args []string) error {
	id, err := parsePageID(args)
	if err != nil {
		return err
	}
	dirty := len(args) > 1 && args[1] == "dirty"
	if err := c.eng.DataPool().Unpin(id, dirty); err != nil {
		return err
	}
	fmt.Printf("unpinned page %d (dirty=%v)\n", id, dirty)
	return nil
}

func (c *CLI) flushPage(args []string) error {
	id, err := parsePageID(args)
	if err != nil {
		return err
	}
	if err := c.eng.DataPool().Flush(id); err != nil {
		return err
	}
	fmt.Printf("flushed page %d\n", id)
	return nil
}

func (c *CLI) flushAll() error {
	if err := c.eng.DataPool().FlushAll(); err != nil {
		return err
	}
	fmt.Println("flushed every dirty page")
	return nil
}

func parseUint64(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func (c *CLI) hashGet(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <key>")
	}
	key, err := parseUint64(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	values, err := c.eng.HashIndex().Get(key)
	if err != nil {
		return err
	}
	fmt.Printf("%d value(s): %v\n", len(values), values)
	return nil
}

func (c *CLI) hashInsert(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: insert <key> <value>")
	}
	key, err := parseUint64(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	value, err := parseUint64(args[1])
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	ok, err := c.eng.HashIndex().Insert(key, value)
	if err != nil {
		return err
	}
	fmt.Printf("inserted=%v\n", ok)
	return nil
}

func (c *CLI) hashRemove(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: remove <key> <value>")
	}
	key, err := parseUint64(args[0])
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	value, err := parseUint64(args[1])
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	ok, err := c.eng.HashIndex().Remove(key, value)
	if err != nil {
		return err
	}
	fmt.Printf("removed=%v\n", ok)
	return nil
}

func (c *CLI) globalDepth() error {
	depth, err := c.eng.HashIndex().GlobalDepth()
	if err != nil {
		return err
	}
	fmt.Printf("global depth: %d\n", depth)
	return nil
}

func parseIsolation(args []string) lockmgr.IsolationLevel {
	if len(args) == 0 {
		return lockmgr.RepeatableRead
	}
	switch args[0] {
	case "read-uncommitted":
		return lockmgr.ReadUncommitted
	case "read-committed":
		return lockmgr.ReadCommitted
	default:
		return lockmgr.RepeatableRead
	}
}

func (c *CLI) beginTxn(args []string) error {
	c.txn = c.eng.BeginTxn(parseIsolation(args))
	fmt.Printf("started transaction %d\n", c.txn.ID)
	return nil
}

func (c *CLI) requireTxn() (*lockmgr.Transaction, error) {
	if c.txn == nil {
		return nil, fmt.Errorf("no active transaction (use 'begin' first)")
	}
	return c.txn, nil
}

func parseResource(args []string) (lockmgr.ResourceID, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("missing resource id")
	}
	id, err := parseUint64(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid resource id: %w", err)
	}
	return lockmgr.ResourceID(id), nil
}

func (c *CLI) lockShared(args []string) error {
	txn, err := c.requireTxn()
	if err != nil {
		return err
	}
	rid, err := parseResource(args)
	if err != nil {
		return err
	}
	ok, err := c.eng.Locks().LockShared(txn, rid)
	if err != nil {
		return err
	}
	fmt.Printf("granted=%v\n", ok)
	return nil
}

func (c *CLI) lockExclusive(args []string) error {
	txn, err := c.requireTxn()
	if err != nil {
		return err
	}
	rid, err := parseResource(args)
	if err != nil {
		return err
	}
	ok, err := c.eng.Locks().LockExclusive(txn, rid)
	if err != nil {
		return err
	}
	fmt.Printf("granted=%v\n", ok)
	return nil
}

func (c *CLI) lockUpgrade(args []string) error {
	txn, err := c.requireTxn()
	if err != nil {
		return err
	}
	rid, err := parseResource(args)
	if err != nil {
		return err
	}
	ok, err := c.eng.Locks().LockUpgrade(txn, rid)
	if err != nil {
		return err
	}
	fmt.Printf("upgraded=%v\n", ok)
	return nil
}

func (c *CLI) unlockResource(args []string) error {
	txn, err := c.requireTxn()
	if err != nil {
		return err
	}
	rid, err := parseResource(args)
	if err != nil {
		return err
	}
	c.eng.Locks().Unlock(txn, rid)
	fmt.Println("unlocked")
	return nil
}

func (c *CLI) showStats() error {
	stats := c.eng.Stats()
	fmt.Printf("%+v\n", stats)
	return nil
}

func main() {
	dataDir := "./laura-data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	cli, err := NewCLI(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cli.Close()

	if err := cli.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
