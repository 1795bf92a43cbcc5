package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kanbanmcp/kanban-mcp/internal/notes"
)

var (
	noteCardID string
	noteType   string
	noteText   string
	noteTags   string
	noteAuthor string
)

var notesAddCmd = &cobra.Command{
	Use:   "notes-add",
	Short: "Append one entry to a card's note journal",
	RunE:  runNotesAdd,
}

var notesListCmd = &cobra.Command{
	Use:   "notes-list",
	Short: "List every entry in a card's note journal",
	RunE:  runNotesList,
}

func init() {
	rootCmd.AddCommand(notesAddCmd, notesListCmd)
	notesAddCmd.Flags().StringVar(&noteCardID, "card", "", "card id (required)")
	notesAddCmd.Flags().StringVar(&noteType, "type", "", "note type (required)")
	notesAddCmd.Flags().StringVar(&noteText, "text", "", "note text (required)")
	notesAddCmd.Flags().StringVar(&noteTags, "tags", "", "comma-separated tags")
	notesAddCmd.Flags().StringVar(&noteAuthor, "author", "", "note author")
	notesListCmd.Flags().StringVar(&noteCardID, "card", "", "card id (required)")
}

func openJournal(root string) *notes.Journal {
	return notes.New(filepath.Join(root, ".kanban"))
}

func runNotesAdd(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}

	var tags []string
	if noteTags != "" {
		tags = strings.Split(noteTags, ",")
	}

	err = openJournal(root).Add(noteCardID, notes.Entry{
		Type:   noteType,
		Text:   noteText,
		Tags:   tags,
		Author: noteAuthor,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), noteCardID)
	return nil
}

func runNotesList(cmd *cobra.Command, args []string) error {
	root, err := resolveBoardPath()
	if err != nil {
		return err
	}

	entries, err := openJournal(root).List(noteCardID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
