package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/bulletinkeeper/internal/bulletin"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/services"
	"github.com/dmitrijs2005/bulletinkeeper/internal/client/store"
	"github.com/dmitrijs2005/bulletinkeeper/internal/common"
	"github.com/dmitrijs2005/bulletinkeeper/internal/cryptox"
	"github.com/dmitrijs2005/bulletinkeeper/internal/filex"
	"github.com/dmitrijs2005/bulletinkeeper/internal/packet"
	"github.com/dmitrijs2005/bulletinkeeper/internal/transfer"
)

// importFolder receives archives imported without a folder argument.
const importFolder = "Imported"

var errUsage = errors.New("wrong number of arguments, see help")

func (a *App) Info(ctx context.Context) error {
	account := a.store.AccountID()
	code, err := cryptox.ComputePublicCode(account)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account:     %s\n", account)
	fmt.Fprintf(a.out, "Public code: %s\n", code)
	fmt.Fprintf(a.out, "Server:      %s (%s)\n", a.config.ServerEndpointAddr, a.Mode())
	if hq := a.store.HQPublicKey(); hq != "" {
		fmt.Fprintf(a.out, "HQ:          %s\n", hq)
	}

	info, err := a.server.CachedServerInfo(ctx)
	if err != nil {
		return nil
	}
	fmt.Fprintf(a.out, "Server key:  %s\n", info.PublicKey)
	fmt.Fprintf(a.out, "Version:     %s\n", info.Version)
	if info.Compliance != "" {
		fmt.Fprintf(a.out, "Compliance:  %s\n", info.Compliance)
	}
	return nil
}

// Ping checks the server and refreshes the cached server information.
func (a *App) Ping(ctx context.Context) error {
	if err := a.server.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return err
	}
	a.setMode(ModeOnline)

	info, err := a.server.GetServerInfo(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Server %s is up, version %s\n", shortKey(info.PublicKey), info.Version)
	return nil
}

func (a *App) RequestUploadRights(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.server.RequestUploadRights(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Upload rights granted")
	return nil
}

// NewBulletin prompts for the fields of a bulletin and saves it. A sealed
// bulletin goes to the outbox, a draft to the draft folder.
func (a *App) NewBulletin(ctx context.Context) error {
	b := a.store.CreateBulletin()

	title, err := getSimpleText(a.reader, "Title", a.out)
	if err != nil {
		return err
	}
	b.Set(bulletin.TagTitle, title)

	summary, err := GetMultiline(a.reader, "Summary", a.out)
	if err != nil {
		return err
	}
	b.Set(bulletin.TagSummary, summary)

	eventDate, err := getSimpleText(a.reader, "Event date (YYYY-MM-DD, empty keeps "+b.Get(bulletin.TagEventDate)+")", a.out)
	if err != nil {
		return err
	}
	if eventDate != "" {
		if _, err := time.Parse(common.DateLayout, eventDate); err != nil {
			return fmt.Errorf("invalid event date %q", eventDate)
		}
		b.Set(bulletin.TagEventDate, eventDate)
	}

	private, err := GetMultiline(a.reader, "Private information", a.out)
	if err != nil {
		return err
	}
	b.Set(bulletin.TagPrivateInfo, private)

	fields, err := GetFields(a.reader, a.out)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if !bulletin.IsStandardField(f[0]) && !bulletin.IsPrivateField(f[0]) {
			return fmt.Errorf("unknown field %q", f[0])
		}
		b.Set(f[0], f[1])
	}

	public, err := Confirm(a.reader, "Publish the public fields?", a.out)
	if err != nil {
		return err
	}
	b.SetAllPrivate(!public)

	seal, err := Confirm(a.reader, "Seal the bulletin now?", a.out)
	if err != nil {
		return err
	}
	folder := store.FolderDraft
	if seal {
		b.SetSealed()
		folder = store.FolderOutbox
	}

	if err := a.store.SaveBulletin(ctx, b); err != nil {
		return err
	}
	if err := a.store.AddBulletinToFolder(folder, b.UniversalID()); err != nil {
		return err
	}
	if err := a.store.SaveFolders(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s to %s\n", b.LocalID(), folder)
	return nil
}

func (a *App) Folders(ctx context.Context) error {
	for _, name := range a.store.FolderNames() {
		if f := a.store.FindFolder(name); f != nil {
			fmt.Fprintf(a.out, "%-32s %d\n", name, f.Count())
		}
	}
	return nil
}

// List prints id, status, event date and title of every bulletin in a
// folder. Bulletins that cannot be loaded are shown as damaged.
func (a *App) List(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	f := a.store.FindFolder(args[0])
	if f == nil {
		return fmt.Errorf("%w: %q", common.ErrFolderNotFound, args[0])
	}
	if f.Count() == 0 {
		fmt.Fprintln(a.out, "(empty)")
		return nil
	}
	for _, uid := range f.IDs {
		b, err := a.store.FindBulletin(ctx, uid)
		if err != nil {
			fmt.Fprintf(a.out, "%s  (damaged: %v)\n", uid.LocalID, err)
			continue
		}
		fmt.Fprintf(a.out, "%s  %-6s  %s  %s\n", uid.LocalID, b.Status(), b.Get(bulletin.TagEventDate), b.Get(bulletin.TagTitle))
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	uid, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	b, err := a.store.FindBulletin(ctx, uid)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Bulletin %s (%s)\n", uid.LocalID, b.Status())
	fmt.Fprintf(a.out, "  author account: %s\n", shortKey(uid.AccountID))
	for _, tag := range append(bulletin.StandardFieldNames(), bulletin.PrivateFieldNames()...) {
		if v := b.Get(tag); v != "" {
			fmt.Fprintf(a.out, "  %s: %s\n", tag, v)
		}
	}
	if !b.IsValid() {
		fmt.Fprintln(a.out, "  warning: some field data failed verification")
	}
	if folders := a.store.FoldersContaining(uid); len(folders) > 0 {
		fmt.Fprintf(a.out, "  folders: %s\n", strings.Join(folders, ", "))
	}
	return nil
}

func (a *App) CreateFolder(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	f, err := a.store.CreateFolder(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := a.store.SaveFolders(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created folder %s\n", f.Name)
	return nil
}

func (a *App) Move(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	uid, err := a.resolve(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.store.MoveBulletin(uid, args[1], args[2]); err != nil {
		return err
	}
	return a.store.SaveFolders(ctx)
}

func (a *App) Discard(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	uid, err := a.resolve(ctx, args[1])
	if err != nil {
		return err
	}
	if err := a.store.DiscardBulletin(ctx, args[0], uid); err != nil {
		return err
	}
	return a.store.SaveFolders(ctx)
}

// Search fills the search results folder. The date range defaults to
// everything up to today.
func (a *App) Search(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 3 {
		return errUsage
	}
	start, end := time.Time{}, time.Now()
	var err error
	if len(args) > 1 {
		if start, err = time.Parse(common.DateLayout, args[1]); err != nil {
			return fmt.Errorf("invalid start date %q", args[1])
		}
	}
	if len(args) > 2 {
		if end, err = time.Parse(common.DateLayout, args[2]); err != nil {
			return fmt.Errorf("invalid end date %q", args[2])
		}
	}

	n, err := a.store.Search(ctx, args[0], start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d bulletin(s) found, see %s\n", n, store.FolderSearchResults)
	return nil
}

// Send uploads pending bulletins one by one until the outboxes are empty
// or the server refuses one.
func (a *App) Send(ctx context.Context) error {
	sent := 0
	for {
		code, err := a.sync.BackgroundUpload(ctx, a.progressSink()).Wait()
		if err != nil {
			return err
		}
		switch code {
		case "":
			fmt.Fprintf(a.out, "%d bulletin(s) sent\n", sent)
			return nil
		case transfer.OK, transfer.Duplicate:
			sent++
		case transfer.NotFound:
			// dropped from the outbox
		default:
			return &transfer.ServerError{Code: code, Reason: "upload"}
		}
	}
}

// Retrieve downloads this account's sealed bulletins the store lacks.
func (a *App) Retrieve(ctx context.Context) error {
	ids, err := a.server.ListMySealedBulletins(ctx)
	if err != nil {
		return err
	}
	folder := a.store.CreateRetrievedFolder(false)

	code, err := a.sync.RetrieveBulletins(ctx, ids, folder.Name, a.progressSink()).Wait()
	if err != nil {
		return err
	}
	if saveErr := a.store.SaveFolders(ctx); saveErr != nil {
		return saveErr
	}
	if code != transfer.OK {
		return &transfer.ServerError{Code: code, Reason: "retrieve"}
	}
	fmt.Fprintf(a.out, "%d bulletin(s) on the server, see %s\n", len(ids), folder.Name)
	return nil
}

// PurgeServerDrafts removes drafts this account uploaded earlier from the
// server.
func (a *App) PurgeServerDrafts(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.server.DeleteServerDrafts(ctx, args); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d server draft(s) removed\n", len(args))
	return nil
}

// Offices lists the field office accounts that sent sealed bulletins to
// this account as HQ.
func (a *App) Offices(ctx context.Context) error {
	accounts, err := a.server.ListFieldOfficeAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(a.out, "No field offices")
		return nil
	}
	for _, account := range accounts {
		code, err := cryptox.ComputePublicCode(account)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s  %s\n", code, account)
	}
	return nil
}

// Peek prints the public fields of a bulletin on the server without
// downloading it.
func (a *App) Peek(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	fields, err := a.server.RetrievePublicData(ctx, packet.UniversalID{AccountID: args[0], LocalID: args[1]})
	if err != nil {
		return err
	}
	for _, f := range fields {
		fmt.Fprintf(a.out, "%-16s %s\n", f.Tag+":", f.Value)
	}
	return nil
}

// Export writes a bulletin archive, or a whole folder as XML, into the
// export directory.
func (a *App) Export(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	dir, err := filex.EnsureSubdDir(a.config.ExportDir)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	var path string
	if f := a.store.FindFolder(args[0]); f != nil {
		bs := make([]*bulletin.Bulletin, 0, f.Count())
		for _, uid := range f.IDs {
			b, err := a.store.FindBulletin(ctx, uid)
			if err != nil {
				a.log.Warn(ctx, "export skipped bulletin", "bulletin", uid.String(), "error", err)
				continue
			}
			bs = append(bs, b)
		}
		if err := bulletin.ExportXML(&buf, bs, true); err != nil {
			return err
		}
		path = filepath.Join(dir, exportName(f.Name)+".xml")
	} else {
		uid, err := a.resolve(ctx, args[0])
		if err != nil {
			return err
		}
		if err := a.store.ExportArchive(ctx, uid, &buf); err != nil {
			return err
		}
		path = filepath.Join(dir, uid.LocalID+".zip")
	}

	if err := filex.WriteFileAtomic(path, buf.Bytes(), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote %s\n", path)
	return nil
}

// Import reads a bulletin archive and files it under a folder, "Imported"
// by default.
func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	name := importFolder
	if len(args) == 2 {
		name = args[1]
	}
	if a.store.FindFolder(name) == nil {
		if _, err := a.store.CreateFolder(name); err != nil {
			return err
		}
	}

	res, err := a.store.ImportArchive(ctx, data)
	if err != nil {
		return err
	}
	if err := a.store.AddBulletinToFolder(name, res.Key.UID); err != nil {
		return err
	}
	if err := a.store.SaveFolders(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Imported %s into %s (%d packets", res.Key.UID.LocalID, name, len(res.Imported))
	if len(res.Rejected) > 0 {
		fmt.Fprintf(a.out, ", %d rejected", len(res.Rejected))
	}
	fmt.Fprintln(a.out, ")")
	return nil
}

// resolve finds a stored bulletin by local id or a unique prefix of it.
func (a *App) resolve(ctx context.Context, id string) (packet.UniversalID, error) {
	ids, err := a.store.BulletinIDs(ctx)
	if err != nil {
		return packet.UniversalID{}, err
	}
	var found []packet.UniversalID
	for _, uid := range ids {
		if uid.LocalID == id {
			return uid, nil
		}
		if strings.HasPrefix(uid.LocalID, id) {
			found = append(found, uid)
		}
	}
	switch len(found) {
	case 0:
		return packet.UniversalID{}, fmt.Errorf("bulletin %q: %w", id, common.ErrNotFound)
	case 1:
		return found[0], nil
	}
	return packet.UniversalID{}, fmt.Errorf("bulletin id %q is ambiguous (%d matches)", id, len(found))
}

func (a *App) progressSink() services.ProgressSink {
	return func(p services.Progress) {
		fmt.Fprintf(a.out, "  %s: %d/%d\n", p.Label, p.Done, p.Total)
	}
}

// getSimpleText is an indirection used to facilitate testing.
var getSimpleText = GetSimpleText

func shortKey(key string) string {
	if len(key) > 16 {
		return key[:16] + "..."
	}
	return key
}

func exportName(folder string) string {
	return strings.TrimPrefix(strings.ReplaceAll(folder, " ", "_"), "%")
}
