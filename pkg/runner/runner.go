package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/go-pkgz/syncs"
	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sqltext/pkg/config"
	"github.com/umputun/sqltext/pkg/refdb"
	"github.com/umputun/sqltext/pkg/textops"
)

// Process is a struct that holds the information needed to verify a casebook.
// It runs every suite in a separate goroutine with limited concurrency, evaluates cases locally
// and, if Reference is set, in the reference database as well.
type Process struct {
	Concurrency int
	Casebook    *config.Casebook
	Reference   Reference
	Out         io.Writer // report output, os.Stdout if not set
	Monochrome  bool
	Verbose     bool // report passed cases too

	Only []string
	Skip []string
}

// Reference is an interface for a database evaluating the same calls, implemented by refdb.Engine.
// Calls it can't express with the standard semantics return refdb.ErrUnsupported.
type Reference interface {
	Type() string
	Position(ctx context.Context, mode textops.Mode, needle, haystack []byte) (int, error)
	Substring(ctx context.Context, mode textops.Mode, target []byte, pos, length int, useLen bool) ([]byte, error)
	Overlay(ctx context.Context, mode textops.Mode, target, placing []byte, start, length int) ([]byte, error)
	Length(ctx context.Context, mode textops.Mode, v []byte) (int, error)
}

// ProcResp holds the information about processed suites and cases.
type ProcResp struct {
	Suites     int
	Cases      int
	Passed     int
	Failed     int
	RefChecked int
	RefSkipped int
}

type counters struct {
	cases, passed, failed, refChecked, refSkipped atomic.Int32
}

// Run runs all selected suites of the casebook. Returns ProcResp with counters and an error
// combining all failed cases, if any.
func (p *Process) Run(ctx context.Context) (ProcResp, error) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	rep := newReportWriter(out, p.Monochrome)

	suites := []config.Suite{}
	for _, s := range p.Casebook.AllSuites() {
		if p.shouldRunSuite(s.Name) {
			suites = append(suites, s)
		}
	}
	log.Printf("[DEBUG] run %d suites, concurrency %d", len(suites), p.Concurrency)

	cnt := &counters{}
	concurrency := p.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	wg := syncs.NewErrSizedGroup(concurrency, syncs.Context(ctx), syncs.Preemptive)
	for _, s := range suites {
		wg.Go(func() error {
			return p.runSuite(ctx, s, rep.withSuite(s.Name), cnt)
		})
	}
	err := wg.Wait()
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("interrupted: %w", ctx.Err())
	}

	return ProcResp{
		Suites:     len(suites),
		Cases:      int(cnt.cases.Load()),
		Passed:     int(cnt.passed.Load()),
		Failed:     int(cnt.failed.Load()),
		RefChecked: int(cnt.refChecked.Load()),
		RefSkipped: int(cnt.refSkipped.Load()),
	}, err
}

// runSuite evaluates all cases of the suite, failed cases don't stop the suite.
func (p *Process) runSuite(ctx context.Context, s config.Suite, rep *reportWriter, cnt *counters) error {
	since := func(st time.Time) time.Duration { return time.Since(st).Truncate(time.Microsecond) }
	st := time.Now()

	ops, err := textops.ForMode(s.Mode)
	if err != nil {
		return fmt.Errorf("suite %q: %w", s.Name, err)
	}
	rep.Printf("run suite %q, mode: %s, cases: %d", s.Name, s.Mode, len(s.Cases))

	errs := new(multierror.Error)
	failed := 0
	for _, cs := range s.Cases {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cnt.cases.Add(1)
		res := evalCase(ops, cs)

		caseErr := checkCase(cs, res)
		if caseErr == nil && p.Reference != nil {
			checked, refErr := p.checkReference(ctx, s.Mode, cs, res)
			switch {
			case refErr != nil:
				caseErr = refErr
			case checked:
				cnt.refChecked.Add(1)
			default:
				cnt.refSkipped.Add(1)
			}
		}

		if caseErr != nil {
			cnt.failed.Add(1)
			failed++
			rep.Printf("FAIL %q: %v", cs.Name, caseErr)
			errs = multierror.Append(errs, fmt.Errorf("suite %q, case %q: %w", s.Name, cs.Name, caseErr))
			continue
		}
		cnt.passed.Add(1)
		if p.Verbose {
			rep.Printf("ok   %q = %s", cs.Name, res.render(cs.Hex))
		}
	}

	rep.Printf("completed suite %q, cases: %d, failed: %d (%v)", s.Name, len(s.Cases), failed, since(st))
	return errs.ErrorOrNil()
}

// checkReference evaluates the case in the reference database and compares with the local result.
// Returns false if the reference can't evaluate the case.
func (p *Process) checkReference(ctx context.Context, mode textops.Mode, cs config.Case, local result) (bool, error) {
	if cs.Op == config.OpKey {
		return false, nil
	}
	inp, err := cs.Inputs()
	if err != nil {
		return false, err
	}

	ref := result{isInt: local.isInt}
	switch cs.Op {
	case config.OpPosition:
		ref.n, ref.err = p.Reference.Position(ctx, mode, inp.Needle, inp.Haystack)
	case config.OpLength:
		ref.n, ref.err = p.Reference.Length(ctx, mode, inp.Target)
	case config.OpSubstring:
		ref.val, ref.err = p.Reference.Substring(ctx, mode, inp.Target, cs.Pos, cs.Length(), cs.UseLen())
	case config.OpOverlay:
		ref.val, ref.err = p.Reference.Overlay(ctx, mode, inp.Target, inp.Placing, cs.Start, cs.Length())
	default:
		return false, nil
	}

	if errors.Is(ref.err, refdb.ErrUnsupported) {
		log.Printf("[DEBUG] case %q not supported by %s", cs.Name, p.Reference.Type())
		return false, nil
	}

	switch {
	case local.err != nil && ref.err != nil:
		return true, nil // both rejected the call
	case local.err != nil:
		return true, fmt.Errorf("%s returned %s, expected error %v", p.Reference.Type(), ref.render(cs.Hex), local.err)
	case ref.err != nil:
		return true, fmt.Errorf("%s failed: %w", p.Reference.Type(), ref.err)
	case !local.equal(ref):
		return true, fmt.Errorf("%s returned %s, local %s", p.Reference.Type(), ref.render(cs.Hex), local.render(cs.Hex))
	}
	return true, nil
}

func (p *Process) shouldRunSuite(name string) bool {
	if len(p.Only) > 0 && !stringutils.Contains(name, p.Only) {
		log.Printf("[DEBUG] skip suite %q, not in only list", name)
		return false
	}
	if len(p.Skip) > 0 && stringutils.Contains(name, p.Skip) {
		log.Printf("[DEBUG] skip suite %q, in skip list", name)
		return false
	}
	return true
}

// result of a single call, either bytes or int
type result struct {
	val   []byte
	n     int
	isInt bool
	err   error
}

func (r result) equal(other result) bool {
	if r.isInt {
		return r.n == other.n
	}
	return bytes.Equal(r.val, other.val)
}

func (r result) render(hex bool) string {
	switch {
	case r.err != nil:
		return "error: " + r.err.Error()
	case r.isInt:
		return strconv.Itoa(r.n)
	case hex:
		return fmt.Sprintf("%x", r.val)
	default:
		return strconv.Quote(string(r.val))
	}
}

// evalCase calls textops (or keyfn for key cases) with the case inputs
func evalCase(ops textops.Ops, cs config.Case) result {
	if cs.Op == config.OpKey {
		if cs.KeyFn == nil {
			return result{err: fmt.Errorf("no key fn for %q", cs.Key)}
		}
		return result{val: []byte(cs.KeyFn.Denormalize(cs.Key).String())}
	}

	inp, err := cs.Inputs()
	if err != nil {
		return result{err: err}
	}
	switch cs.Op {
	case config.OpPosition:
		return result{isInt: true, n: ops.Position(textops.NewView(inp.Needle), textops.NewView(inp.Haystack))}
	case config.OpLength:
		return result{isInt: true, n: ops.Length(textops.NewView(inp.Target))}
	case config.OpSubstring:
		v, e := ops.Substring(textops.NewView(inp.Target), cs.Pos, cs.Length(), cs.UseLen())
		return result{val: v.ByteSlice(), err: e}
	case config.OpOverlay:
		v, e := ops.Overlay(textops.NewView(inp.Target), textops.NewView(inp.Placing), cs.Start, cs.Length())
		return result{val: v.ByteSlice(), err: e}
	default:
		return result{err: fmt.Errorf("unknown op %q", cs.Op)}
	}
}

// checkCase compares the result with case expectations
func checkCase(cs config.Case, res result) error {
	if cs.ExpectError {
		if res.err == nil {
			return fmt.Errorf("expected error, got %s", res.render(cs.Hex))
		}
		return nil
	}
	if res.err != nil {
		return fmt.Errorf("unexpected error: %w", res.err)
	}

	if cs.ExpectInt != nil && res.n != *cs.ExpectInt {
		return fmt.Errorf("expected %d, got %d", *cs.ExpectInt, res.n)
	}
	if cs.Expect != nil {
		exp, err := cs.Expected()
		if err != nil {
			return err
		}
		if !bytes.Equal(exp, res.val) {
			return fmt.Errorf("expected %s, got %s", result{val: exp}.render(cs.Hex && cs.Op != config.OpKey), res.render(cs.Hex && cs.Op != config.OpKey))
		}
	}
	return nil
}
