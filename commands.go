package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/tutuna/telex/internals/config"
	"github.com/tutuna/telex/internals/database"
	"github.com/tutuna/telex/internals/feeds"
	"github.com/tutuna/telex/internals/models"
	"github.com/tutuna/telex/internals/multipart"
	"github.com/tutuna/telex/internals/telex"
	"github.com/tutuna/telex/internals/uploads"
	"gorm.io/gorm"
)

// openJournal connects to the journal database, or returns nil when none is
// configured.
func openJournal(params *database.DbParams) (*gorm.DB, error) {
	if params == nil || !params.Configured() {
		return nil, nil
	}
	db := database.DbConnect(params)
	if err := uploads.Migrate(db); err != nil {
		return nil, errors.Wrap(err, "failed to migrate journal")
	}
	return db, nil
}

func recordUpload(db *gorm.DB, method string, resp *telex.Response, err error) {
	if db == nil {
		return
	}
	u := uploads.NewUpload(method, resp, err)
	if rerr := uploads.RecordUpload(db, &u); rerr != nil {
		log.Printf("Error recording %s upload: %v", method, rerr)
	}
}

// send calls method, journals the outcome and prints the response body to out.
func send(ctx context.Context, client *telex.Client, db *gorm.DB, method string, payload telex.Payload, out io.Writer) error {
	resp, err := client.Do(ctx, method, payload)
	recordUpload(db, method, resp, err)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Body)
	if !resp.OK() {
		return errors.Errorf("%s rejected with status %d", method, resp.Status)
	}
	return nil
}

// encodeBody writes the multipart body for payload to w and its Content-Type
// to info. It returns the number of body bytes written.
func encodeBody(payload telex.Payload, w, info io.Writer, opts ...multipart.Option) (int64, error) {
	enc, stream, err := payload.Build(opts...)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	fmt.Fprintf(info, "Content-Type: %s\n", enc.ContentType())
	for chunk, err := range stream.All() {
		if err != nil {
			return stream.Emitted(), err
		}
		if _, err := w.Write(chunk); err != nil {
			return stream.Emitted(), errors.Wrap(err, "failed to write body")
		}
	}
	return stream.Emitted(), nil
}

// publishFeed sends the feed's unpublished episodes to chatID, oldest first.
// Audio is streamed from the enclosure URL through downloader straight into
// the sendAudio body; nothing is written to disk.
//
// Parameters:
//
//	db         - journal database; nil disables both the journal and the
//	             published-episode check.
//	fp         - parser used to fetch feedURL.
//	downloader - HTTP client for enclosure downloads.
//	limit      - newest episodes to consider; <= 0 means all of them.
//	delay      - pause between uploads.
//
// A failed episode is logged, journaled and left unpublished so the next run
// retries it. The returned count is the number of episodes sent; the error
// reports how many failed.
func publishFeed(ctx context.Context, client *telex.Client, db *gorm.DB, fp feeds.FeedParserInterface, downloader telex.Doer,
	feedURL, chatID string, limit int, delay time.Duration) (int, error) {
	log.Printf("Checking feed %s for chat %s", feedURL, chatID)
	episodes, err := feeds.LatestEpisodes(fp, feedURL, limit)
	if err != nil {
		return 0, err
	}
	if db != nil {
		if episodes, err = feeds.FilterUnpublished(db, chatID, episodes); err != nil {
			return 0, errors.Wrap(err, "failed to load published episodes")
		}
	}
	if len(episodes) == 0 {
		log.Printf("No new episodes in %s", feedURL)
		return 0, nil
	}
	slices.Reverse(episodes)

	sent, failed := 0, 0
	for i, ep := range episodes {
		if i > 0 && delay > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(delay):
			}
		}

		log.Printf("Publishing %s (%s)", ep.Title, ep.AudioURL)
		payload := ep.Payload(chatID, telex.URLSource(ctx, downloader, ep.AudioURL))
		resp, err := client.Do(ctx, "sendAudio", payload)
		recordUpload(db, "sendAudio", resp, err)
		switch {
		case err != nil:
			log.Printf("Error publishing %s: %v", ep.Title, err)
			failed++
			continue
		case !resp.OK():
			log.Printf("Telegram rejected %s with status %d: %s", ep.Title, resp.Status, resp.Body)
			failed++
			continue
		}

		sent++
		if db != nil {
			if err := feeds.MarkPublished(db, feedURL, chatID, ep); err != nil {
				log.Printf("Error marking %s as published: %v", ep.Title, err)
			}
		}
	}
	if failed > 0 {
		return sent, errors.Errorf("%d of %d episodes failed", failed, len(episodes))
	}
	return sent, nil
}

// printHistory writes the newest journal rows as a table. A limit <= 0
// prints every row.
func printHistory(db *gorm.DB, w io.Writer, limit int, failedOnly bool) error {
	var (
		rows []models.Upload
		err  error
	)
	if failedOnly {
		rows, err = uploads.GetFailedUploads(db)
		if err == nil && limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
	} else {
		rows, err = uploads.GetRecentUploads(db, limit)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWHEN\tMETHOD\tSTATUS\tPARTS\tBYTES\tMS\tERROR")
	for _, u := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			u.ID, u.CreatedAt.Format(time.DateTime), u.Method, u.Status, u.Parts, u.Bytes, u.DurationMs, u.Error)
	}
	return tw.Flush()
}

type sendCmd struct {
	method string
	fields telex.Payload
}

func (*sendCmd) Name() string     { return "send" }
func (*sendCmd) Synopsis() string { return "Call a Bot API method with a multipart body." }
func (*sendCmd) Usage() string {
	return `send -method <method> [-f name=value]... [-F name=@path]...:
  Call a Bot API method. Fields are sent in the order given.
`
}

func (c *sendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.method, "method", "", "Bot API method, e.g. sendDocument")
	f.Var(fieldFlag{payload: &c.fields}, "f", "text field name=value (repeatable)")
	f.Var(fieldFlag{payload: &c.fields, file: true}, "F", "file field name=@path (repeatable)")
}

func (c *sendCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.method == "" {
		c.method = f.Arg(0)
	}
	if c.method == "" {
		f.PrintDefaults()
		return subcommands.ExitUsageError
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	client, err := cfg.Client()
	if err != nil {
		log.Printf("Error creating client: %v", err)
		return subcommands.ExitFailure
	}
	db, err := openJournal(&cfg.DB)
	if err != nil {
		log.Printf("Error opening journal: %v", err)
		return subcommands.ExitFailure
	}

	if err := send(ctx, client, db, c.method, c.fields, os.Stdout); err != nil {
		log.Printf("Error sending %s: %v", c.method, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type encodeCmd struct {
	fields    telex.Payload
	boundary  string
	chunkSize int
	out       string
}

func (*encodeCmd) Name() string     { return "encode" }
func (*encodeCmd) Synopsis() string { return "Write the multipart body for a set of fields." }
func (*encodeCmd) Usage() string {
	return `encode [-boundary <b>] [-o <file>] [-f name=value]... [-F name=@path]...:
  Write the encoded body to stdout or a file. The Content-Type header goes to stderr.
`
}

func (c *encodeCmd) SetFlags(f *flag.FlagSet) {
	f.Var(fieldFlag{payload: &c.fields}, "f", "text field name=value (repeatable)")
	f.Var(fieldFlag{payload: &c.fields, file: true}, "F", "file field name=@path (repeatable)")
	f.StringVar(&c.boundary, "boundary", "", "boundary to use instead of a random one")
	f.IntVar(&c.chunkSize, "chunk", multipart.DefaultChunkSize, "file read buffer size")
	f.StringVar(&c.out, "o", "", "output file (default stdout)")
}

func (c *encodeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	opts := []multipart.Option{multipart.WithChunkSize(c.chunkSize)}
	if c.boundary != "" {
		opts = append(opts, multipart.WithBoundary(c.boundary))
	}

	var w io.Writer = os.Stdout
	if c.out != "" {
		file, err := os.Create(c.out)
		if err != nil {
			log.Printf("Error creating %s: %v", c.out, err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		w = file
	}

	n, err := encodeBody(c.fields, w, os.Stderr, opts...)
	if err != nil {
		log.Printf("Error encoding body: %v", err)
		return subcommands.ExitFailure
	}
	log.Printf("Wrote %d bytes", n)
	return subcommands.ExitSuccess
}

type fileURLCmd struct{}

func (*fileURLCmd) Name() string     { return "fileurl" }
func (*fileURLCmd) Synopsis() string { return "Print the download URL for a file_path." }
func (*fileURLCmd) Usage() string {
	return `fileurl <file_path>:
  Print the download URL for a file_path returned by getFile.
`
}

func (*fileURLCmd) SetFlags(*flag.FlagSet) {}

func (*fileURLCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	client, err := cfg.Client()
	if err != nil {
		log.Printf("Error creating client: %v", err)
		return subcommands.ExitFailure
	}
	fmt.Println(client.FileURL(f.Arg(0)))
	return subcommands.ExitSuccess
}

type publishFeedCmd struct {
	feed  string
	chat  string
	limit int
	delay time.Duration
}

func (*publishFeedCmd) Name() string     { return "publishFeed" }
func (*publishFeedCmd) Synopsis() string { return "Send new podcast episodes to a chat." }
func (*publishFeedCmd) Usage() string {
	return `publishFeed -feed <url> -chat <chat_id>:
  Stream new podcast episodes from a feed to a chat with sendAudio.
`
}

func (c *publishFeedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.feed, "feed", "", "URL of the podcast feed")
	f.StringVar(&c.chat, "chat", "", "target chat_id or @channel")
	f.IntVar(&c.limit, "limit", 1, "newest episodes to consider")
	f.DurationVar(&c.delay, "delay", 5*time.Second, "pause between uploads")
}

func (c *publishFeedCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.feed == "" || c.chat == "" {
		f.PrintDefaults()
		return subcommands.ExitUsageError
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Error loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	client, err := cfg.Client()
	if err != nil {
		log.Printf("Error creating client: %v", err)
		return subcommands.ExitFailure
	}
	db, err := openJournal(&cfg.DB)
	if err != nil {
		log.Printf("Error opening journal: %v", err)
		return subcommands.ExitFailure
	}
	if db == nil {
		log.Println("No database configured; every run republishes the latest episodes")
	}

	sent, err := publishFeed(ctx, client, db, feeds.NewGofeedParser(), http.DefaultClient, c.feed, c.chat, c.limit, c.delay)
	log.Printf("Published %d episodes from %s", sent, c.feed)
	if err != nil {
		log.Printf("Error publishing feed: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type historyCmd struct {
	limit  int
	failed bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "List recent uploads." }
func (*historyCmd) Usage() string {
	return `history [-limit n] [-failed]:
  List recent uploads from the journal database.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "limit", 20, "rows to show, 0 for all")
	f.BoolVar(&c.failed, "failed", false, "only failed uploads")
}

func (c *historyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := openJournal(database.InitDbParams())
	if err != nil {
		log.Printf("Error opening journal: %v", err)
		return subcommands.ExitFailure
	}
	if db == nil {
		log.Println("Set TELEX_DB_FILE or TELEX_DB_DSN to use the journal")
		return subcommands.ExitUsageError
	}
	if err := printHistory(db, os.Stdout, c.limit, c.failed); err != nil {
		log.Printf("Error reading journal: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
