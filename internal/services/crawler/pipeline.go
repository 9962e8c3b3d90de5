package crawler

import (
	"context"
	"fmt"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/jeiths2202/ims-crawler/internal/models"
)

// Ingestion batch sizes. Embedding calls batch 32 texts per round trip;
// vector writes run 20 at a time in parallel against the pool.
const (
	embedBatchSize     = 32
	indexBatchSize     = 20
	savingProgressStep = 10
)

// embedUnit pairs a persisted issue with the text submitted for embedding.
type embedUnit struct {
	issueID int64
	text    string
}

// ingest runs the three-phase pipeline: sequential persist, batched embed,
// parallel index. Per-issue persistence failures are tolerated; an
// embedding batch failure fails the job.
func (s *Service) ingest(ctx context.Context, job *models.CrawlJob, issues []*models.Issue) error {
	units, err := s.persistPhase(ctx, job, issues)
	if err != nil {
		return err
	}

	vectors, err := s.embedPhase(ctx, job, units)
	if err != nil {
		return err
	}

	return s.indexPhase(ctx, job, units, vectors)
}

// persistPhase upserts issues one by one, extracting attachment text and
// crawling depth-1 related issues along the way.
func (s *Service) persistPhase(ctx context.Context, job *models.CrawlJob, issues []*models.Issue) ([]embedUnit, error) {
	if job.Config.IncludeAttachments {
		s.transition(ctx, job, models.JobStatusProcessingAttachments, "Processing attachments", job.Progress)
	}
	s.publish(job, models.ProgressEvent{Type: models.EventPhaseStarted, Phase: "persist", Total: len(issues)})

	units := make([]embedUnit, 0, len(issues))
	for i, issue := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var attachmentTexts []string
		if job.Config.IncludeAttachments {
			attachmentTexts = s.extractAttachments(ctx, job, issue)
		}

		id, err := s.issues.Save(ctx, issue)
		if err != nil {
			s.logger.Warn().
				Str("ims_id", issue.IMSID).
				Err(err).
				Msg("Issue save failed")
			s.publish(job, models.ProgressEvent{
				Type:    models.EventIssueSaveFailed,
				IMSID:   issue.IMSID,
				Message: err.Error(),
			})
			continue
		}

		job.ResultIssueIDs = append(job.ResultIssueIDs, id)
		units = append(units, embedUnit{
			issueID: id,
			text:    issue.EmbeddingText(attachmentTexts),
		})

		if job.Config.IncludeRelated && len(issue.RelatedIMSIDs) > 0 {
			s.crawlRelated(ctx, job, issue)
		}

		if (i+1)%savingProgressStep == 0 || i+1 == len(issues) {
			s.publish(job, models.ProgressEvent{
				Type:      models.EventSavingProgress,
				Processed: i + 1,
				Total:     len(issues),
			})
			s.save(ctx, job)
		}
	}

	return units, nil
}

// extractAttachments pulls text from the issue's attachments through the
// authenticated session. Extraction failures are per-file and non-fatal.
func (s *Service) extractAttachments(ctx context.Context, job *models.CrawlJob, issue *models.Issue) []string {
	var texts []string
	for _, url := range issue.AttachmentURLs {
		text, err := s.extractor.ExtractText(ctx, url, path.Base(url), s.scraper.FetchFile)
		if err != nil {
			s.logger.Debug().
				Str("ims_id", issue.IMSID).
				Str("url", url).
				Err(err).
				Msg("Attachment extraction failed")
			continue
		}
		if text != "" {
			texts = append(texts, text)
			job.AttachmentsProcessed++
		}
	}
	return texts
}

// crawlRelated crawls the issue's related ids at depth 1, persisting each
// and recording a relates_to edge. Best-effort per related issue.
func (s *Service) crawlRelated(ctx context.Context, job *models.CrawlJob, issue *models.Issue) {
	for _, relatedID := range issue.RelatedIMSIDs {
		if err := ctx.Err(); err != nil {
			return
		}

		related, err := s.scraper.CrawlIssue(ctx, job.UserID, relatedID)
		if err != nil {
			s.logger.Debug().
				Str("ims_id", relatedID).
				Err(err).
				Msg("Related issue crawl failed")
			continue
		}
		// Depth 1 only: related issues do not cascade further.
		related.RelatedIMSIDs = nil

		targetID, err := s.issues.Save(ctx, related)
		if err != nil {
			s.logger.Debug().
				Str("ims_id", relatedID).
				Err(err).
				Msg("Related issue save failed")
			continue
		}
		if err := s.issues.SaveRelation(ctx, issue.ID, targetID, models.RelationRelatesTo); err != nil {
			s.logger.Debug().
				Str("ims_id", relatedID).
				Err(err).
				Msg("Relation save failed")
			continue
		}
		job.RelatedCrawled++
	}
}

// embedPhase embeds the collected texts in sequential batches. Any batch
// failure fails the phase; phase-1 rows stay persisted without embeddings
// and are picked up later by BackfillEmbeddings.
func (s *Service) embedPhase(ctx context.Context, job *models.CrawlJob, units []embedUnit) ([][]float32, error) {
	s.transition(ctx, job, models.JobStatusEmbedding, "Generating embeddings", progressEmbedFrom)
	s.publish(job, models.ProgressEvent{Type: models.EventPhaseStarted, Phase: "embed", Total: len(units)})

	if len(units) == 0 {
		return nil, nil
	}

	totalBatches := (len(units) + embedBatchSize - 1) / embedBatchSize
	vectors := make([][]float32, 0, len(units))

	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := batch * embedBatchSize
		end := start + embedBatchSize
		if end > len(units) {
			end = len(units)
		}

		texts := make([]string, 0, end-start)
		for _, unit := range units[start:end] {
			texts = append(texts, unit.text)
		}

		batchVectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.publish(job, models.ProgressEvent{
				Type:    models.EventEmbeddingFailed,
				Batch:   batch + 1,
				Message: err.Error(),
			})
			return nil, fmt.Errorf("embedding batch %d failed: %w", batch+1, err)
		}
		vectors = append(vectors, batchVectors...)

		span := progressEmbedTo - progressEmbedFrom
		progress := progressEmbedFrom + span*(batch+1)/totalBatches
		if err := job.Transition(models.JobStatusEmbedding, job.CurrentStep, progress); err == nil {
			s.save(ctx, job)
		}
		s.publish(job, models.ProgressEvent{
			Type:      models.EventEmbeddingProgress,
			Processed: end,
			Total:     len(units),
			Batch:     batch + 1,
		})
	}

	return vectors, nil
}

// indexPhase writes vectors in parallel batches of 20. Individual write
// failures are logged and tolerated.
func (s *Service) indexPhase(ctx context.Context, job *models.CrawlJob, units []embedUnit, vectors [][]float32) error {
	s.publish(job, models.ProgressEvent{Type: models.EventPhaseStarted, Phase: "index", Total: len(units)})

	if len(vectors) != len(units) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d issues", len(vectors), len(units))
	}

	totalBatches := (len(units) + indexBatchSize - 1) / indexBatchSize
	for batch := 0; batch < totalBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := batch * indexBatchSize
		end := start + indexBatchSize
		if end > len(units) {
			end = len(units)
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				if err := s.issues.SaveEmbedding(gctx, units[i].issueID, vectors[i], units[i].text); err != nil {
					s.logger.Warn().
						Int64("issue_id", units[i].issueID).
						Err(err).
						Msg("Embedding save failed")
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		s.publish(job, models.ProgressEvent{
			Type:      models.EventEmbeddingSaveProg,
			Batch:     batch + 1,
			Processed: end,
			Total:     len(units),
		})
	}

	return nil
}

// BackfillEmbeddings re-embeds stored issues missing vectors, outside any
// job. Used after an embedding-phase failure left phase-1 rows behind.
func (s *Service) BackfillEmbeddings(ctx context.Context, userID string) (int, error) {
	issues, err := s.issues.FindByUserID(ctx, userID, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to load issues: %w", err)
	}

	embedded, err := s.issues.GetEmbeddedIMSIDs(ctx, userID, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to check embedded ids: %w", err)
	}

	var units []embedUnit
	for _, issue := range issues {
		if embedded[issue.IMSID] {
			continue
		}
		units = append(units, embedUnit{
			issueID: issue.ID,
			text:    issue.EmbeddingText(nil),
		})
	}
	if len(units) == 0 {
		return 0, nil
	}

	for start := 0; start < len(units); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(units) {
			end = len(units)
		}

		texts := make([]string, 0, end-start)
		for _, unit := range units[start:end] {
			texts = append(texts, unit.text)
		}

		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return start, fmt.Errorf("backfill embedding batch failed: %w", err)
		}
		for i, vec := range vectors {
			unit := units[start+i]
			if err := s.issues.SaveEmbedding(ctx, unit.issueID, vec, unit.text); err != nil {
				s.logger.Warn().
					Int64("issue_id", unit.issueID).
					Err(err).
					Msg("Backfill embedding save failed")
			}
		}
	}

	s.logger.Info().
		Str("user_id", userID).
		Int("backfilled", len(units)).
		Msg("Embedding backfill completed")

	return len(units), nil
}
