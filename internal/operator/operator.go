// Package operator implements the privileged account commands that have no
// HTTP route: creating the first super admin and switching account status.
package operator

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/domainx/internal/common"
	"github.com/dmitrijs2005/domainx/internal/flagx"
	"github.com/dmitrijs2005/domainx/internal/server/models"
	"github.com/dmitrijs2005/domainx/internal/server/services"
)

// Accounts is the part of an account service the commands use.
type Accounts interface {
	BootstrapAdmin(ctx context.Context, in services.RegisterInput) (models.Profile, error)
	SetStatus(ctx context.Context, email string, active, approved bool) (models.Profile, error)
}

// Lookup returns the service for a kind, or nil.
type Lookup func(kind string) Accounts

var ErrUsage = errors.New("usage: bootstrap admin -email E [-name N] | bootstrap status [-kind K] -email E -active=BOOL -approved=BOOL")

// Run executes the command named by args[0]. Flags it does not know are
// ignored so the server config flags can share the command line.
func Run(ctx context.Context, args []string, lookup Lookup, stdin io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "admin":
		return createAdmin(ctx, rest, lookup, bufio.NewReader(stdin), out)
	case "status":
		return setStatus(ctx, rest, lookup, out)
	default:
		return ErrUsage
	}
}

func createAdmin(ctx context.Context, args []string, lookup Lookup, in *bufio.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "admin email")
	name := fs.String("name", "", "display name")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-email", "-name"})); err != nil {
		return err
	}

	svc := lookup(common.KindAdmin)
	if svc == nil {
		return fmt.Errorf("no %s service", common.KindAdmin)
	}

	var err error
	if *email == "" {
		if *email, err = GetSimpleText(in, "Email", out); err != nil {
			return err
		}
	}
	if *name == "" {
		if *name, err = GetSimpleText(in, "Name", out); err != nil {
			return err
		}
	}

	pw, err := GetPassword(out, "Password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword(out, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return errors.New("passwords do not match")
	}

	p, err := svc.BootstrapAdmin(ctx, services.RegisterInput{Name: *name, Email: *email, Password: string(pw)})
	if err != nil {
		return describe(err)
	}

	fmt.Fprintf(out, "created %s %s (id %s)\n", p.Role, p.Email, p.ID)
	return nil
}

func setStatus(ctx context.Context, args []string, lookup Lookup, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	kind := fs.String("kind", common.KindReseller, "account kind")
	email := fs.String("email", "", "account email")
	active := fs.Bool("active", false, "account may log in")
	approved := fs.Bool("approved", false, "reseller is approved")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-kind", "-email", "-active", "-approved"})); err != nil {
		return err
	}

	// Both switches must be explicit so one change never flips the other.
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if *email == "" || !set["active"] || !set["approved"] {
		return ErrUsage
	}

	svc := lookup(*kind)
	if svc == nil {
		return fmt.Errorf("unknown account kind %q", *kind)
	}

	p, err := svc.SetStatus(ctx, *email, *active, *approved)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no %s account with email %s", *kind, *email)
		}
		return err
	}

	fmt.Fprintf(out, "%s %s: active=%t approved=%t\n", p.UserType, p.Email, p.IsActive, p.IsApproved)
	return nil
}

// describe turns validation failures into something readable on a terminal.
func describe(err error) error {
	var verr *common.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	var b bytes.Buffer
	b.WriteString("invalid input:")
	for _, f := range verr.Fields {
		fmt.Fprintf(&b, " %s(%s", f.Field, f.Tag)
		if f.Param != "" {
			fmt.Fprintf(&b, "=%s", f.Param)
		}
		b.WriteString(")")
	}
	return errors.New(b.String())
}
