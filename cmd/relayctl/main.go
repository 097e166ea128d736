package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/matheus3301/chatrelay/internal/admin"
	"github.com/matheus3301/chatrelay/internal/instance"
	"github.com/matheus3301/chatrelay/internal/store"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		cmdStatus(instanceName, *jsonFlag)
	case "users":
		withDB(instanceName, func(db *store.DB) { cmdUsers(db, args[1:], *jsonFlag) })
	case "chats":
		withDB(instanceName, func(db *store.DB) { cmdChats(db, args[1:], *jsonFlag) })
	case "messages":
		withDB(instanceName, func(db *store.DB) { cmdMessages(db, args[1:], *jsonFlag) })
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relayctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                              Show daemon health and schema version")
	fmt.Fprintln(os.Stderr, "  users add <username> [email]        Create a user")
	fmt.Fprintln(os.Stderr, "  users list                          List users")
	fmt.Fprintln(os.Stderr, "  chats add [--group name] <userId>.. Create a chat")
	fmt.Fprintln(os.Stderr, "  chats direct <userA> <userB>        Find or create a direct chat")
	fmt.Fprintln(os.Stderr, "  chats list <userId>                 List a user's chats")
	fmt.Fprintln(os.Stderr, "  messages list <chatId> [limit]      Show recent messages")
}

type statusOutput struct {
	Instance      string `json:"instance"`
	Health        string `json:"health"`
	SchemaVersion uint   `json:"schema_version"`
	SchemaDirty   bool   `json:"schema_dirty"`
}

func cmdStatus(instanceName string, jsonOut bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := statusOutput{Instance: instanceName, Health: "UNREACHABLE"}
	if st, err := admin.Check(ctx, instance.AdminSocketPath(instanceName)); err == nil {
		out.Health = st.String()
	}

	if _, err := os.Stat(instance.DBPath(instanceName)); err == nil {
		db, err := store.Open(instance.DBPath(instanceName))
		if err != nil {
			fail(err)
		}
		out.SchemaVersion, out.SchemaDirty, err = db.SchemaVersion()
		_ = db.Close()
		if err != nil {
			fail(err)
		}
	}

	if jsonOut {
		outputJSON(out)
		return
	}
	fmt.Printf("Instance: %s\n", out.Instance)
	fmt.Printf("Health:   %s\n", out.Health)
	fmt.Printf("Schema:   v%d", out.SchemaVersion)
	if out.SchemaDirty {
		fmt.Print(" (dirty)")
	}
	fmt.Println()
}

func cmdUsers(db *store.DB, args []string, jsonOut bool) {
	if len(args) == 0 {
		usage("relayctl users <add|list>")
	}
	switch args[0] {
	case "add":
		if len(args) < 2 {
			usage("relayctl users add <username> [email]")
		}
		email := ""
		if len(args) > 2 {
			email = args[2]
		}
		u, err := db.CreateUser(args[1], email)
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(u)
			return
		}
		fmt.Printf("%s %s\n", u.ID, u.Username)
	case "list":
		users, err := db.ListUsers()
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(users)
			return
		}
		if len(users) == 0 {
			fmt.Println("No users found.")
			return
		}
		for _, u := range users {
			fmt.Printf("%-36s %-20s %s\n", u.ID, u.Username, u.Status)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown users subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdChats(db *store.DB, args []string, jsonOut bool) {
	if len(args) == 0 {
		usage("relayctl chats <add|direct|list>")
	}
	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("chats add", flag.ExitOnError)
		group := fs.String("group", "", "group name; makes the chat a group chat")
		_ = fs.Parse(args[1:])
		if fs.NArg() == 0 {
			usage("relayctl chats add [--group name] <userId>...")
		}
		c, err := db.CreateChat(fs.Args(), *group != "", *group)
		if err != nil {
			fail(err)
		}
		printChat(c, jsonOut)
	case "direct":
		if len(args) != 3 {
			usage("relayctl chats direct <userA> <userB>")
		}
		c, err := db.FindOrCreateDirectChat(args[1], args[2])
		if err != nil {
			fail(err)
		}
		printChat(c, jsonOut)
	case "list":
		if len(args) != 2 {
			usage("relayctl chats list <userId>")
		}
		chats, err := db.ListUserChats(args[1])
		if err != nil {
			fail(err)
		}
		if jsonOut {
			outputJSON(chats)
			return
		}
		if len(chats) == 0 {
			fmt.Println("No chats found.")
			return
		}
		for i := range chats {
			printChat(&chats[i], false)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown chats subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printChat(c *store.Chat, jsonOut bool) {
	if jsonOut {
		outputJSON(c)
		return
	}
	kind := "direct"
	if c.IsGroup {
		kind = "group:" + c.GroupName
	}
	fmt.Printf("%-36s %-16s %v\n", c.ID, kind, c.Participants)
}

func cmdMessages(db *store.DB, args []string, jsonOut bool) {
	if len(args) < 2 || args[0] != "list" {
		usage("relayctl messages list <chatId> [limit]")
	}
	limit := 0
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			usage("relayctl messages list <chatId> [limit]")
		}
		limit = n
	}
	msgs, err := db.ListMessages(args[1], limit)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages found.")
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.CreatedAt).Format(time.DateTime)
		fmt.Printf("%s  %-12s %-5s %s\n", ts, m.SenderName, m.Status, m.Content)
	}
}

// withDB opens and migrates the instance database so directories can be
// seeded before the daemon first runs.
func withDB(instanceName string, fn func(*store.DB)) {
	if err := instance.EnsureDir(instanceName); err != nil {
		fail(err)
	}
	db, err := store.Open(instance.DBPath(instanceName))
	if err != nil {
		fail(err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fail(err)
	}
	fn(db)
}

func usage(line string) {
	fmt.Fprintln(os.Stderr, "usage: "+line)
	os.Exit(1)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
