package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"cassa/internal/core"
	"cassa/internal/ledger"
)

var stdout io.Writer = os.Stdout

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

type showCmd struct {
	*fileFlags
	withLog  bool
	markdown bool
	style    string
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "print balances, overview and optionally the log" }
func (*showCmd) Usage() string {
	return `cassactl show [-f file] [-log] [-md [-style auto|dark|light|notty]]
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.withLog, "log", false, "also print every log entry")
	f.BoolVar(&c.markdown, "md", false, "render a formatted report")
	f.StringVar(&c.style, "style", "auto", "glamour style for -md")
}

func (c *showCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	p, err := c.names()
	if err != nil {
		return fail(err)
	}
	if c.markdown {
		out, err := renderMarkdown(markdownReport(p, b, c.withLog), c.style)
		if err != nil {
			return fail(err)
		}
		fmt.Fprint(stdout, out)
		return subcommands.ExitSuccess
	}

	a := b.Accounts
	o := ledger.Totals(a)

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, u := range core.Users() {
		fmt.Fprintf(w, "%s\t%s\t\n", p.Name(u), a.Personal[u])
	}
	fmt.Fprintf(w, "joint cash\t%s\t\n", a.JointCash)
	for _, cl := range core.AssetClasses() {
		fmt.Fprintf(w, "%s\t%s\t@ %s%%\t%s\t\n", cl, a.Principal[cl], a.Rate(cl), a.EstimatedValue(cl))
	}
	fmt.Fprintf(w, "unrealized\t%s\t\n", o.Unrealized)
	fmt.Fprintf(w, "joint total\t%s\t\n", o.JointTotal)
	fmt.Fprintf(w, "net worth\t%s\t\n", o.NetWorth)
	if err := w.Flush(); err != nil {
		return fail(err)
	}

	if c.withLog {
		fmt.Fprintln(stdout)
		for i, e := range b.Log.All() {
			fmt.Fprintln(stdout, describe(p, i, e))
		}
	}
	return subcommands.ExitSuccess
}

type verifyCmd struct{ *fileFlags }

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "check that the stored balances match the log" }
func (*verifyCmd) Usage() string {
	return `cassactl verify [-f file]

  Replays the log and compares the result with the balances in the file.
`
}
func (c *verifyCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *verifyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "%s: %d entries, balances consistent\n", c.path(), b.Log.Len())
	return subcommands.ExitSuccess
}

type debtsCmd struct{ *fileFlags }

func (*debtsCmd) Name() string     { return "debts" }
func (*debtsCmd) Synopsis() string { return "list unsettled advances per member" }
func (*debtsCmd) Usage() string {
	return `cassactl debts [-f file]
`
}
func (c *debtsCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *debtsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	p, err := c.names()
	if err != nil {
		return fail(err)
	}
	for _, u := range core.Users() {
		fmt.Fprintf(stdout, "%s is owed %s\n", p.Name(u), ledger.Outstanding(b.Log, u))
		for _, adv := range ledger.Detail(b.Log, u) {
			fmt.Fprintf(stdout, "  %s\n", describe(p, adv.Index, adv.Entry))
		}
	}
	return subcommands.ExitSuccess
}

type searchCmd struct{ *fileFlags }

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "search the log, newest first" }
func (*searchCmd) Usage() string {
	return `cassactl search [-f file] <term>

  Matches date, month, owner, operator, kind, category and note.
`
}
func (c *searchCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *searchCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	p, err := c.names()
	if err != nil {
		return fail(err)
	}
	hits := ledger.Search(b.Log, strings.Join(f.Args(), " "))
	for _, h := range hits {
		fmt.Fprintln(stdout, describe(p, h.Index, h.Entry))
	}
	fmt.Fprintf(stdout, "%d matching entries\n", len(hits))
	return subcommands.ExitSuccess
}

type deleteCmd struct {
	*fileFlags
	in  io.Reader
	yes bool
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete an entry and reverse its effect" }
func (*deleteCmd) Usage() string {
	return `cassactl delete [-f file] [-y] <entry-id>
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.yes, "y", false, "do not ask for confirmation")
}

func (c *deleteCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	i := b.Log.IndexOf(f.Arg(0))
	if i < 0 {
		return fail(fmt.Errorf("%w: %s", core.ErrEntryNotFound, f.Arg(0)))
	}
	entry, _ := b.Log.At(i)
	if !c.yes {
		p, err := c.names()
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Delete %s? [y/N] ", describe(p, i, entry))
		answer, _ := bufio.NewReader(c.in).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Fprintln(stdout, "aborted")
			return subcommands.ExitSuccess
		}
	}
	eng, err := c.engine()
	if err != nil {
		return fail(err)
	}
	out, err := eng.Delete(b, i)
	if err != nil {
		return fail(err)
	}
	if err := c.save(out.Book); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "deleted %s\n", f.Arg(0))
	return subcommands.ExitSuccess
}

type settleCmd struct {
	*fileFlags
	date     string
	operator string
}

func (*settleCmd) Name() string     { return "settle" }
func (*settleCmd) Synopsis() string { return "settle every outstanding advance of a member" }
func (*settleCmd) Usage() string {
	return `cassactl settle [-f file] [-date YYYY-MM-DD] <user>
`
}

func (c *settleCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.date, "date", "", "settlement date (defaults to today)")
	f.StringVar(&c.operator, "operator", "", "who records the settlement")
}

func (c *settleCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	b, err := c.load()
	if err != nil {
		return fail(err)
	}
	p, err := c.names()
	if err != nil {
		return fail(err)
	}
	m := ledger.Meta{Date: core.Today(), Operator: c.operator}
	if c.date != "" {
		if m.Date, err = core.ParseDate(c.date); err != nil {
			return fail(err)
		}
	}
	eng, err := c.engine()
	if err != nil {
		return fail(err)
	}
	out, err := eng.Settle(b, core.UserID(f.Arg(0)), m)
	if err != nil {
		return fail(err)
	}
	if out.Entry == nil {
		fmt.Fprintln(stdout, "nothing to settle")
		return subcommands.ExitSuccess
	}
	if err := c.save(out.Book); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "settled %s for %s\n", out.Entry.Total(), p.Name(core.UserID(f.Arg(0))))
	return subcommands.ExitSuccess
}
