package authdomain

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/coresrv/entity"
)

// Submission trees are laid out as <root>/<domainSubdir>/<semesterDir>/<crnSubdir>.
// Renaming a domain, a semester, or an offering must rename the matching
// directory level under every affected root; renames are attempted
// best-effort across all targets and failures are aggregated into one error
// so a partial rename is never reported as success.

// RenameDomain changes a domain's property name, renames its directory under
// each managed root, and commits the record change. The registry entry is
// re-keyed in place so readers see the new name immediately.
func (r *Registry) RenameDomain(ctx context.Context, roots []string, oldPropertyName, newPropertyName string) error {
	r.mu.Lock()
	dom, ok := r.domains[oldPropertyName]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownDomain.Msg(oldPropertyName)
	}

	oldSub := dom.Record.SubdirName()

	ec, err := r.st.NewContext(ctx)
	if err != nil {
		return err
	}
	defer ec.Dispose()

	ec.Lock()
	record, err := ec.Localize(dom.Record.EnterpriseObject)
	if err == nil {
		err = record.Set(entity.KeyPropertyName, newPropertyName)
	}
	ec.Unlock()
	if err != nil {
		return err
	}
	ec.Lock()
	err = ec.SaveChanges(ctx)
	ec.Unlock()
	if err != nil {
		return err
	}

	newSub := entity.AsAuthDomain(record).SubdirName()
	if err := renameUnderRoots(ctx, roots, oldSub, newSub); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.domains, oldPropertyName)
	dom.PropertyName = newPropertyName
	dom.Record = entity.AsAuthDomain(record)
	r.domains[newPropertyName] = dom
	for i, name := range r.order {
		if name == oldPropertyName {
			r.order[i] = newPropertyName
		}
	}
	r.mu.Unlock()
	return nil
}

// RenameSemesterDirs renames a semester directory under every registered
// domain's subtree in every managed root.
func (r *Registry) RenameSemesterDirs(ctx context.Context, roots []string, oldDir, newDir string) error {
	var failures []error
	for _, dom := range r.All() {
		sub := dom.Record.SubdirName()
		if err := renameUnderRoots(ctx, roots, filepath.Join(sub, oldDir), filepath.Join(sub, newDir)); err != nil {
			failures = append(failures, err)
		}
	}
	return aggregateRenameErrors(failures)
}

// RenameOfferingDirs renames a course-offering directory within one semester
// under every registered domain's subtree in every managed root.
func (r *Registry) RenameOfferingDirs(ctx context.Context, roots []string, semesterDir, oldCRN, newCRN string) error {
	oldSub := entity.SanitizeSubdirName(oldCRN)
	newSub := entity.SanitizeSubdirName(newCRN)
	var failures []error
	for _, dom := range r.All() {
		sub := dom.Record.SubdirName()
		old := filepath.Join(sub, semesterDir, oldSub)
		next := filepath.Join(sub, semesterDir, newSub)
		if err := renameUnderRoots(ctx, roots, old, next); err != nil {
			failures = append(failures, err)
		}
	}
	return aggregateRenameErrors(failures)
}

// renameUnderRoots renames oldRel to newRel under each root. Roots where the
// source does not exist are skipped; every rename is attempted before
// failures are reported.
func renameUnderRoots(ctx context.Context, roots []string, oldRel, newRel string) error {
	var failures []error
	for _, root := range roots {
		oldPath := filepath.Join(root, oldRel)
		newPath := filepath.Join(root, newRel)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(oldPath, newPath); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("from", oldPath).Str("to", newPath).Msg("directory rename failed")
			failures = append(failures, errors.Wrapf(err, "rename %s to %s", oldPath, newPath))
			continue
		}
		log.Ctx(ctx).Info().Str("from", oldPath).Str("to", newPath).Msg("renamed directory")
	}
	return aggregateRenameErrors(failures)
}

func aggregateRenameErrors(failures []error) error {
	if len(failures) == 0 {
		return nil
	}
	return ErrDirectoryRename.Err(failures...)
}
