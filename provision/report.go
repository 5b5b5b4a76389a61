package provision

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// Render writes the human-readable report.
func (r *Report) Render(w io.Writer) error {
	mode := "unsharded"
	if r.Sharded {
		mode = "sharded"
	}
	run := "provision"
	if r.VerifyOnly {
		run = "verify"
	}
	if _, err := fmt.Fprintf(w, "%s run %s on %s (%s deployment)\n\n", run, r.RunID, r.Namespace, mode); err != nil {
		return err
	}

	if len(r.Indexes) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tKEYS\tOUTCOME")
		for _, res := range r.Indexes {
			outcome := string(res.Outcome)
			if res.Reason != "" {
				outcome += ": " + res.Reason
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Index.Name, res.Index.KeySpec(), outcome)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	sharding := string(r.Sharding.Outcome)
	if r.Sharding.Detail != "" {
		sharding += " (" + r.Sharding.Detail + ")"
	}
	fmt.Fprintf(w, "sharding: %s\n", sharding)
	fmt.Fprintf(w, "live indexes: %d\n", len(r.Live))
	if r.VerifyErr != nil {
		fmt.Fprintf(w, "verification failed: %v\n", r.VerifyErr)
	}

	var err error
	switch {
	case r.OK():
		_, err = fmt.Fprintf(w, "PASS (%s)\n", r.Duration.Round(time.Millisecond))
	case len(r.Missing) > 0:
		_, err = fmt.Fprintf(w, "FAIL: missing %s\n", strings.Join(r.Missing, ", "))
	default:
		_, err = fmt.Fprintln(w, "FAIL")
	}
	return err
}
