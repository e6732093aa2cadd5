package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/satriahrh/buddy/domain/entities"
)

var submitFlags struct {
	title       string
	description string
	course      string
	mediaType   string
	summary     string
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a resource to the search corpus",
	Long: `Submit a resource to the search corpus.

Articles and videos are submitted by link, documents and images by upload.
Title, description, course and media type are required.`,
}

var submitLinkCmd = &cobra.Command{
	Use:   "link <url>",
	Short: "Submit an article or a video by link",
	Long: `Submit an article or a video by link.

Examples:
  buddyctl submit link https://www.youtube.com/watch?v=abc123 \
    --type video --title Heaps --description "Binary heaps" --course "CS 61B"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSearchClient()
		if err != nil {
			return err
		}

		submission := newSubmission(entities.MediaTypeArticle)
		submission.MediaLink = args[0]

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		resource, err := client.SubmitLink(ctx, submission)
		if err != nil {
			return fmt.Errorf("submission failed: %w", err)
		}
		return printResource(cmd, resource)
	},
}

var submitFileCmd = &cobra.Command{
	Use:   "file <path>",
	Short: "Upload a document or an image",
	Long: `Upload a document or an image.

Examples:
  buddyctl submit file notes.pdf --title "Heap notes" \
    --description "Lecture notes" --course "CS 61B"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newSearchClient()
		if err != nil {
			return err
		}

		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer file.Close()

		submission := newSubmission(entities.MediaTypeDocument)
		submission.File = file
		submission.FileName = filepath.Base(args[0])

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		resource, err := client.UploadFile(ctx, submission)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		return printResource(cmd, resource)
	},
}

func newSubmission(fallback entities.MediaType) entities.ResourceSubmission {
	mediaType := entities.MediaType(submitFlags.mediaType)
	if mediaType == "" {
		mediaType = fallback
	}
	return entities.ResourceSubmission{
		Title:       submitFlags.title,
		Description: submitFlags.description,
		Course:      submitFlags.course,
		MediaType:   mediaType,
		Summary:     submitFlags.summary,
	}
}

func printResource(cmd *cobra.Command, resource *entities.Resource) error {
	if jsonOutput {
		return printJSON(resource)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %q (%s) as %s\n", resource.Title, resource.MediaType, resource.ID)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{submitLinkCmd, submitFileCmd} {
		c.Flags().StringVar(&submitFlags.title, "title", "", "resource title")
		c.Flags().StringVar(&submitFlags.description, "description", "", "resource description")
		c.Flags().StringVar(&submitFlags.course, "course", "", "course the resource belongs to")
		c.Flags().StringVar(&submitFlags.summary, "summary", "", "summary, defaults to the description")
	}
	submitLinkCmd.Flags().StringVar(&submitFlags.mediaType, "type", "", "media type: article or video (default article)")
	submitFileCmd.Flags().StringVar(&submitFlags.mediaType, "type", "", "media type: document or image (default document)")

	submitCmd.AddCommand(submitLinkCmd)
	submitCmd.AddCommand(submitFileCmd)
	rootCmd.AddCommand(submitCmd)
}
