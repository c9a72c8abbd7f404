package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/studyplan/internal/cryptox"
	"github.com/dmitrijs2005/studyplan/internal/planner/ics"
	"github.com/dmitrijs2005/studyplan/internal/planner/models"
	"github.com/dmitrijs2005/studyplan/internal/planner/persist"
	"github.com/dmitrijs2005/studyplan/internal/planner/recurrence"
	syncengine "github.com/dmitrijs2005/studyplan/internal/planner/sync"
)

const timeLayout = "2006-01-02T15:04"

func (a *App) cmdList(ctx context.Context, args []string) error {
	days := a.config.HorizonDays
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad day count %q", args[0])
		}
		days = n
	}

	from := time.Now()
	to := from.AddDate(0, 0, days)
	expanded, err := recurrence.ExpandAll(a.store.List(), from, to)
	if err != nil {
		return err
	}

	if len(expanded) == 0 {
		fmt.Fprintln(a.out, "no sessions in window")
		return nil
	}
	for _, sess := range expanded {
		course := sess.CourseID
		if course == "" {
			course = "(unassigned)"
		}
		status := ""
		if sess.Attended {
			status = fmt.Sprintf("attended %d%%", sess.PercentComplete)
		}
		fmt.Fprintf(a.out, "%-40s %s - %s  %4d min  %-12s %s\n",
			sess.ID,
			sess.Start.In(a.loc).Format(timeLayout), sess.End.In(a.loc).Format("15:04"),
			sess.DurationMin, course, status)
	}
	return nil
}

func (a *App) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: add <start> <end> [course]")
	}
	start, err := time.ParseInLocation(timeLayout, args[0], a.loc)
	if err != nil {
		return fmt.Errorf("bad start %q: %w", args[0], err)
	}
	end, err := time.ParseInLocation(timeLayout, args[1], a.loc)
	if err != nil {
		return fmt.Errorf("bad end %q: %w", args[1], err)
	}

	sess := models.Session{
		ID:    uuid.NewString(),
		Start: start,
		End:   end,
	}
	if len(args) > 2 {
		sess.CourseID = args[2]
	}
	sess.Normalize()
	if err := sess.Validate(); err != nil {
		return err
	}

	a.store.Upsert(sess)
	if err := a.saveSnapshot(ctx); err != nil {
		return err
	}
	a.runner.RunSyncPass(syncengine.TriggerEdit)
	fmt.Fprintf(a.out, "added %s\n", sess.ID)
	return nil
}

func (a *App) cmdDelete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <id>")
	}
	if err := a.store.Remove(args[0]); err != nil {
		return err
	}
	if err := a.saveSnapshot(ctx); err != nil {
		return err
	}
	a.runner.RunSyncPass(syncengine.TriggerEdit)
	fmt.Fprintf(a.out, "deleted %s\n", args[0])
	return nil
}

func (a *App) cmdAttend(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: attend <id> <percent>")
	}
	percent, err := strconv.Atoi(args[1])
	if err != nil || percent < 0 || percent > 100 {
		return fmt.Errorf("bad completion %q", args[1])
	}
	sess, err := a.store.Get(args[0])
	if err != nil {
		return err
	}
	sess.Attended = true
	sess.PercentComplete = percent
	a.store.Upsert(sess)
	if err := a.saveSnapshot(ctx); err != nil {
		return err
	}
	a.runner.RunSyncPass(syncengine.TriggerEdit)
	return nil
}

func (a *App) cmdMiss(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: miss <id>")
	}
	id := args[0]

	proposal, err := a.replan.Plan(ctx, id)
	if err != nil {
		return err
	}

	confirmed := false
	if proposal.Sufficient() {
		fmt.Fprintf(a.out, "replan %d min of %s onto %d free slot(s)? [y/N] ",
			proposal.RequiredMin, proposal.CourseID, len(proposal.CandidateIDs))
		confirmed = a.confirm()
	} else {
		fmt.Fprintf(a.out, "not enough free capacity: %d min short\n", proposal.ShortfallMin)
	}

	outcome, err := a.replan.HandleMissedSession(ctx, id, confirmed)
	if err != nil {
		return err
	}
	if outcome.Replanned {
		fmt.Fprintf(a.out, "replanned onto %d session(s)\n", len(outcome.ReassignedIDs))
	} else {
		fmt.Fprintln(a.out, "recorded as missed without makeup")
	}
	return a.saveSnapshot(ctx)
}

func (a *App) cmdConnect(ctx context.Context) error {
	calendarID, err := a.promptLine("calendar id: ")
	if err != nil {
		return err
	}
	token, err := a.promptSecret("access token: ")
	if err != nil {
		return err
	}
	passphrase, err := a.promptSecret("local passphrase: ")
	if err != nil {
		return err
	}

	salt, err := cryptox.NewSalt()
	if err != nil {
		return err
	}
	key := cryptox.DeriveKey(passphrase, salt)
	ciphertext, nonce, err := cryptox.Encrypt(string(token), key)
	if err != nil {
		return err
	}

	st := persist.IntegrationState{
		CalendarID: calendarID,
		Credential: ciphertext,
		Nonce:      nonce,
		Salt:       salt,
	}
	if err := a.db.Integration.Save(ctx, st); err != nil {
		return err
	}

	a.creds.set(persist.NewCredentialStore(a.db.Integration, key))
	a.runner.RunSyncPass(syncengine.TriggerEdit)
	fmt.Fprintln(a.out, "connected")
	return nil
}

func (a *App) cmdDisconnect(ctx context.Context) error {
	if err := a.creds.Invalidate(ctx); err != nil {
		return err
	}
	if err := a.db.Integration.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "disconnected")
	return nil
}

func (a *App) cmdExport(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: export <file> [days]")
	}
	days := a.config.HorizonDays
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("bad day count %q", args[1])
		}
		days = n
	}

	from := time.Now()
	feed, err := ics.Export(a.store.List(), from, from.AddDate(0, 0, days), nil)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], []byte(feed), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "wrote %s\n", args[0])
	return nil
}

// unlockIfConnected derives the credential key from the user's passphrase
// when a stored integration exists, so background passes can run.
func (a *App) unlockIfConnected(ctx context.Context) error {
	st, err := a.db.Integration.Get(ctx)
	if errors.Is(err, persist.ErrNotConnected) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(st.Credential) == 0 {
		return nil
	}

	passphrase, err := a.promptSecret("local passphrase: ")
	if err != nil {
		return err
	}
	key := cryptox.DeriveKey(passphrase, st.Salt)

	cs := persist.NewCredentialStore(a.db.Integration, key)
	if _, err := cs.Credential(ctx); err != nil {
		return fmt.Errorf("unlocking credential: %w", err)
	}
	a.creds.set(cs)
	return nil
}
