package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-pkgz/fileutils"
	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"

	"github.com/umputun/sqltext/pkg/config"
	"github.com/umputun/sqltext/pkg/keyfn"
	"github.com/umputun/sqltext/pkg/refdb"
	"github.com/umputun/sqltext/pkg/runner"
	"github.com/umputun/sqltext/pkg/secrets"
	"github.com/umputun/sqltext/pkg/textops"
)

type options struct {
	Mode    string `short:"m" long:"mode" env:"SQLTEXT_MODE" description:"count positions in characters (char) or bytes (binary), char by default"`
	Hex     bool   `long:"hex" description:"arguments and results are hex-encoded"`
	NoColor bool   `long:"no-color" env:"NO_COLOR" description:"disable colorized output"`
	Dbg     bool   `long:"dbg" description:"debug mode"`

	Secrets secretsOptions `group:"secrets" namespace:"secrets" env-namespace:"SQLTEXT_SECRETS"`

	PositionCmd struct {
		PositionalArgs struct {
			Needle   string `positional-arg-name:"needle" required:"yes" description:"value to find"`
			Haystack string `positional-arg-name:"haystack" required:"yes" description:"value to search in"`
		} `positional-args:"yes"`
	} `command:"position" description:"POSITION(needle IN haystack)"`

	SubstringCmd struct {
		From int    `long:"from" required:"true" description:"1-based start position, use --from=-1 for negative values"`
		For  string `long:"for" description:"length, to the end if not set"`

		PositionalArgs struct {
			Target string `positional-arg-name:"target" required:"yes" description:"source value"`
		} `positional-args:"yes"`
	} `command:"substring" description:"SUBSTRING(target FROM pos [FOR len])"`

	OverlayCmd struct {
		From int    `long:"from" required:"true" description:"1-based start position"`
		For  string `long:"for" description:"length to replace, length of placing if not set"`

		PositionalArgs struct {
			Target  string `positional-arg-name:"target" required:"yes" description:"source value"`
			Placing string `positional-arg-name:"placing" required:"yes" description:"value to insert"`
		} `positional-args:"yes"`
	} `command:"overlay" description:"OVERLAY(target PLACING placing FROM pos [FOR len])"`

	LengthCmd struct {
		PositionalArgs struct {
			Value string `positional-arg-name:"value" required:"yes" description:"value to measure"`
		} `positional-args:"yes"`
	} `command:"length" description:"CHAR_LENGTH or OCTET_LENGTH of value"`

	KeyCmd struct {
		Fn string `long:"fn" env:"SQLTEXT_KEY_FN" default:"kebab-case-keyword" description:"key style, e.g. kebab-case-keyword, camel-case-string"`

		PositionalArgs struct {
			Keys []string `positional-arg-name:"key" required:"1" description:"normalized keys"`
		} `positional-args:"yes"`
	} `command:"key" description:"denormalize keys"`

	VerifyCmd struct {
		File       string   `short:"f" long:"file" env:"SQLTEXT_CASEBOOK" default:"casebook.yml" description:"casebook file"`
		Concurrent int      `short:"c" long:"concurrent" default:"1" description:"concurrent suites"`
		Ref        string   `long:"ref" env:"SQLTEXT_REF" description:"reference database connection string"`
		KeyFn      string   `long:"key-fn" description:"override key style of the casebook"`
		Only       []string `long:"only" description:"run only these suites"`
		Skip       []string `long:"skip" description:"skip these suites"`
		Verbose    bool     `short:"v" long:"verbose" description:"report passed cases"`
	} `command:"verify" description:"verify a casebook, optionally against a reference database"`

	SecretCmd struct {
		SetCmd struct {
			PositionalArgs struct {
				Key   string `positional-arg-name:"key" required:"yes" description:"key to set"`
				Value string `positional-arg-name:"value" required:"yes" description:"value to set"`
			} `positional-args:"yes"`
		} `command:"set" description:"set a secret"`

		GetCmd struct {
			PositionalArgs struct {
				Key string `positional-arg-name:"key" required:"yes" description:"key to get"`
			} `positional-args:"yes"`
		} `command:"get" description:"print a secret"`

		DeleteCmd struct {
			PositionalArgs struct {
				Key string `positional-arg-name:"key" required:"yes" description:"key to delete"`
			} `positional-args:"yes"`
		} `command:"del" description:"delete a secret"`

		ListCmd struct {
			PositionalArgs struct {
				Prefix string `positional-arg-name:"prefix" default:"*" description:"key prefix"`
			} `positional-args:"yes"`
		} `command:"list" description:"list secret keys"`
	} `command:"secret" description:"manage secrets in the secrets store"`
}

// secretsOptions defines the provider resolving {secret:name} placeholders of the reference connection string
type secretsOptions struct {
	Provider string `long:"provider" env:"PROVIDER" description:"secrets provider type" choice:"none" choice:"store" choice:"vault" choice:"aws" choice:"ansible-vault" default:"none"`

	Key  string `long:"key" env:"KEY" description:"encryption key of the secrets store"`
	Conn string `long:"conn" env:"CONN" default:"secrets.db" description:"connection string of the secrets store"`

	Vault struct {
		Token string `long:"token" env:"TOKEN" description:"vault token"`
		Path  string `long:"path" env:"PATH" description:"vault path"`
		URL   string `long:"url" env:"URL" description:"vault url"`
	} `group:"vault" namespace:"vault" env-namespace:"VAULT"`

	Aws struct {
		Region    string `long:"region" env:"REGION" description:"aws region"`
		AccessKey string `long:"access-key" env:"ACCESS_KEY" description:"aws access key"`
		SecretKey string `long:"secret-key" env:"SECRET_KEY" description:"aws secret key"`
	} `group:"aws" namespace:"aws" env-namespace:"AWS"`

	AnsibleVault struct {
		File     string `long:"file" env:"FILE" description:"ansible vault file"`
		Password string `long:"password" env:"PASSWORD" description:"ansible vault password"`
	} `group:"ansible-vault" namespace:"ansible-vault" env-namespace:"ANSIBLE_VAULT"`
}

var revision = "latest"

var exitFunc = os.Exit

func main() {
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		exitFunc(1) // can be redefined in tests
	}
	setupLog(opts.Dbg)
	log.Printf("[DEBUG] sqltext %s", revision)

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM) // cancel on SIGINT or SIGTERM
	go func() {
		sig := <-sigs
		log.Printf("[WARN] received signal: %v", sig)
		cancel()
	}()

	monochrome := opts.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))
	if monochrome {
		color.NoColor = true
	}

	if err := run(ctx, p, opts, os.Stdout, monochrome); err != nil {
		log.Printf("[WARN] %v", err)
		exitFunc(1)
	}
}

func run(ctx context.Context, p *flags.Parser, opts options, out io.Writer, monochrome bool) error {
	if p.Active == nil {
		return errors.New("no command specified")
	}

	if p.Active == p.Command.Find("verify") {
		return runVerify(ctx, opts, out, monochrome)
	}

	if secretCmd := p.Command.Find("secret"); secretCmd != nil {
		for _, c := range secretCmd.Commands() {
			if c == p.Active {
				return runSecret(ctx, p, opts, out)
			}
		}
	}

	if p.Active == p.Command.Find("key") {
		fn, err := keyfn.Parse(opts.KeyCmd.Fn)
		if err != nil {
			return err
		}
		for _, k := range opts.KeyCmd.PositionalArgs.Keys {
			fmt.Fprintln(out, fn.Denormalize(k).String())
		}
		return nil
	}

	mode, err := textops.ParseMode(opts.Mode)
	if err != nil {
		return err
	}
	ops, err := textops.ForMode(mode)
	if err != nil {
		return err
	}
	dec := decoder{hex: opts.Hex}

	switch p.Active {
	case p.Command.Find("position"):
		needle := dec.view("needle", opts.PositionCmd.PositionalArgs.Needle)
		haystack := dec.view("haystack", opts.PositionCmd.PositionalArgs.Haystack)
		if dec.err != nil {
			return dec.err
		}
		log.Printf("[DEBUG] position, mode=%s, needle=%q, haystack=%q", mode, needle, haystack)
		fmt.Fprintln(out, ops.Position(needle, haystack))

	case p.Command.Find("substring"):
		target := dec.view("target", opts.SubstringCmd.PositionalArgs.Target)
		length, useLen, lerr := parseLength(opts.SubstringCmd.For)
		if err = errors.Join(dec.err, lerr); err != nil {
			return err
		}
		log.Printf("[DEBUG] substring, mode=%s, target=%q, from=%d, for=%q", mode, target, opts.SubstringCmd.From, opts.SubstringCmd.For)
		res, serr := ops.Substring(target, opts.SubstringCmd.From, length, useLen)
		if serr != nil {
			return fmt.Errorf("can't make substring: %w", serr)
		}
		fmt.Fprintln(out, dec.encode(res))

	case p.Command.Find("overlay"):
		target := dec.view("target", opts.OverlayCmd.PositionalArgs.Target)
		placing := dec.view("placing", opts.OverlayCmd.PositionalArgs.Placing)
		length, useLen, lerr := parseLength(opts.OverlayCmd.For)
		if err = errors.Join(dec.err, lerr); err != nil {
			return err
		}
		if !useLen {
			length = ops.Length(placing)
		}
		log.Printf("[DEBUG] overlay, mode=%s, target=%q, placing=%q, from=%d, for=%d", mode, target, placing, opts.OverlayCmd.From, length)
		res, oerr := ops.Overlay(target, placing, opts.OverlayCmd.From, length)
		if oerr != nil {
			return fmt.Errorf("can't make overlay: %w", oerr)
		}
		fmt.Fprintln(out, dec.encode(res))

	case p.Command.Find("length"):
		v := dec.view("value", opts.LengthCmd.PositionalArgs.Value)
		if dec.err != nil {
			return dec.err
		}
		fmt.Fprintln(out, ops.Length(v))

	default:
		return fmt.Errorf("unknown command %q", p.Active.Name)
	}
	return nil
}

func runVerify(ctx context.Context, opts options, out io.Writer, monochrome bool) error {
	runID := uuid.NewString()
	log.Printf("[INFO] verify run %s, casebook %s", runID, opts.VerifyCmd.File)

	if !fileutils.IsFile(opts.VerifyCmd.File) {
		return fmt.Errorf("casebook %s not found", opts.VerifyCmd.File)
	}

	overrides := &config.Overrides{}
	if opts.Mode != "" {
		mode, err := textops.ParseMode(opts.Mode)
		if err != nil {
			return err
		}
		overrides.Mode = mode
	}
	if opts.VerifyCmd.KeyFn != "" {
		fn, err := keyfn.Parse(opts.VerifyCmd.KeyFn)
		if err != nil {
			return err
		}
		overrides.KeyFn = &fn
	}

	conf, err := config.New(opts.VerifyCmd.File, overrides)
	if err != nil {
		return fmt.Errorf("can't load casebook: %w", err)
	}

	refConn := opts.VerifyCmd.Ref
	if len(secrets.Keys(refConn)) > 0 {
		sp, serr := makeSecretsProvider(ctx, opts.Secrets)
		if serr != nil {
			return fmt.Errorf("can't make secrets provider: %w", serr)
		}
		if c, ok := sp.(io.Closer); ok {
			defer c.Close() // nolint
		}
		var vals []string
		if refConn, vals, err = secrets.Expand(ctx, refConn, sp); err != nil {
			return fmt.Errorf("can't resolve reference connection: %w", err)
		}
		setupLog(opts.Dbg, vals...) // mask resolved secrets in logs
	}

	r := runner.Process{
		Concurrency: opts.VerifyCmd.Concurrent,
		Casebook:    conf,
		Out:         out,
		Monochrome:  monochrome,
		Verbose:     opts.VerifyCmd.Verbose,
		Only:        opts.VerifyCmd.Only,
		Skip:        opts.VerifyCmd.Skip,
	}
	refName := "none"
	if refConn != "" {
		ref, rerr := refdb.New(refConn)
		if rerr != nil {
			return fmt.Errorf("can't make reference engine: %w", rerr)
		}
		defer ref.Close() // nolint
		r.Reference = ref
		refName = ref.Type()
	}

	res, err := r.Run(ctx)
	fmt.Fprintf(out, "run %s: suites: %d, cases: %d, passed: %d, failed: %d, reference: %s, checked: %d, skipped: %d\n",
		runID, res.Suites, res.Cases, res.Passed, res.Failed, refName, res.RefChecked, res.RefSkipped)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	return nil
}

func runSecret(ctx context.Context, p *flags.Parser, opts options, out io.Writer) error {
	if opts.Secrets.Key == "" {
		return errors.New("secrets key not set, use --secrets.key")
	}
	store, err := secrets.NewStore(ctx, opts.Secrets.Conn, []byte(opts.Secrets.Key))
	if err != nil {
		return fmt.Errorf("can't open secrets store: %w", err)
	}
	defer store.Close() // nolint

	secretCmd := p.Command.Find("secret")
	switch p.Active {
	case secretCmd.Find("set"):
		key, val := opts.SecretCmd.SetCmd.PositionalArgs.Key, opts.SecretCmd.SetCmd.PositionalArgs.Value
		log.Printf("[INFO] set secret %q", key)
		if val == "" {
			return fmt.Errorf("can't set empty secret for key %q", key)
		}
		return store.Set(ctx, key, val)

	case secretCmd.Find("get"):
		val, gerr := store.Get(ctx, opts.SecretCmd.GetCmd.PositionalArgs.Key)
		if gerr != nil {
			return gerr
		}
		fmt.Fprintln(out, val)

	case secretCmd.Find("del"):
		log.Printf("[INFO] delete secret %q", opts.SecretCmd.DeleteCmd.PositionalArgs.Key)
		return store.Delete(ctx, opts.SecretCmd.DeleteCmd.PositionalArgs.Key)

	case secretCmd.Find("list"):
		keys, lerr := store.List(ctx, opts.SecretCmd.ListCmd.PositionalArgs.Prefix)
		if lerr != nil {
			return lerr
		}
		for _, k := range keys {
			fmt.Fprintln(out, k)
		}
	}
	return nil
}

// makeSecretsProvider creates secrets provider based on options
func makeSecretsProvider(ctx context.Context, sopts secretsOptions) (secrets.Provider, error) {
	switch sopts.Provider {
	case "store":
		if sopts.Key == "" {
			return nil, errors.New("secrets key not set, use --secrets.key")
		}
		return secrets.NewStore(ctx, sopts.Conn, []byte(sopts.Key))
	case "vault":
		return secrets.NewVaultProvider(sopts.Vault.URL, sopts.Vault.Path, sopts.Vault.Token)
	case "aws":
		return secrets.NewAWSProvider(ctx, sopts.Aws.AccessKey, sopts.Aws.SecretKey, sopts.Aws.Region)
	case "ansible-vault":
		return secrets.NewAnsibleVaultProvider(sopts.AnsibleVault.File, sopts.AnsibleVault.Password)
	}
	log.Printf("[WARN] no secrets provider set, provider %q", sopts.Provider)
	return &secrets.NoOpProvider{}, nil
}

// parseLength parses optional FOR value, empty means no FOR clause
func parseLength(s string) (length int, useLen bool, err error) {
	if s == "" {
		return -1, false, nil
	}
	length, err = strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("invalid length %q: %w", s, err)
	}
	return length, true, nil
}

// decoder makes views from cli arguments, hex-decoded if requested. The first decoding error is kept.
type decoder struct {
	hex bool
	err error
}

func (d *decoder) view(name, s string) textops.ByteView {
	if !d.hex {
		return textops.ViewString(s)
	}
	b, err := hex.DecodeString(s)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("can't decode %s: %w", name, err)
	}
	return textops.NewView(b)
}

func (d *decoder) encode(v textops.ByteView) string {
	if d.hex {
		return hex.EncodeToString(v.ByteSlice())
	}
	return v.String()
}

func setupLog(dbg bool, masked ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))
	if len(masked) > 0 {
		logOpts = append(logOpts, lgr.Secret(masked...))
	}

	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
