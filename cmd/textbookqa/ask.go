package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"textbook-rag/internal/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	askGrade       string
	askSubject     string
	askFile        string
	askShowSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Example: `  textbookqa ask --grade 3 --subject EVS "What do plants need to grow?"
  textbookqa ask --grade 2 --subject "Gujarati EVS" --file notes.pdf "છોડને શું જોઈએ?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Long: `Starts an interactive session for one grade and subject.

Commands:
  /grade <n>        switch grade
  /subject <name>   switch subject
  /file <path>      attach a file to the following questions
  /file             detach the file
  exit              quit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, cmd := range []*cobra.Command{askCmd, chatCmd} {
		cmd.Flags().StringVarP(&askGrade, "grade", "g", "", "grade, e.g. 3")
		cmd.Flags().StringVarP(&askSubject, "subject", "s", "", "subject, e.g. EVS, Maths, Gujarati EVS")
		cmd.Flags().StringVarP(&askFile, "file", "f", "", "optional file (pdf, docx, txt or image) to use as extra context")
		cmd.Flags().BoolVar(&askShowSources, "sources", false, "list the passages the answer was based on")
		cmd.MarkFlagRequired("grade")
		cmd.MarkFlagRequired("subject")
		rootCmd.AddCommand(cmd)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := readUpload(askFile)
	if err != nil {
		return err
	}

	resp, err := a.Assistant.Ask(ctx, models.Request{
		Message: strings.Join(args, " "),
		Grade:   askGrade,
		Subject: askSubject,
		File:    file,
	})
	if err != nil {
		return fmt.Errorf("failed to process query: %w", err)
	}

	fmt.Println(formatAnswer(resp, askShowSources))
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	file, err := readUpload(askFile)
	if err != nil {
		return err
	}

	grade, subject := askGrade, askSubject
	color.Cyan("Textbook assistant: grade %s, %s (type 'exit' to quit)", grade, subject)

	scanner := bufio.NewScanner(os.Stdin)
	userPrompt := color.New(color.FgGreen).PrintfFunc()
	assistantPrompt := color.New(color.FgCyan).PrintfFunc()

	for {
		userPrompt("\nYou: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		lower := strings.ToLower(input)
		if lower == "exit" || lower == "quit" {
			break
		}
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			grade, subject, file = chatCommand(input, grade, subject, file)
			continue
		}

		fmt.Print("Searching textbook... ")
		resp, err := a.Assistant.Ask(ctx, models.Request{Message: input, Grade: grade, Subject: subject, File: file})
		fmt.Print("\r")
		if err != nil {
			color.Red("Error: %v", err)
			continue
		}

		assistantPrompt("Assistant: ")
		fmt.Println(formatAnswer(resp, askShowSources))
	}

	return scanner.Err()
}

func chatCommand(input, grade, subject string, file *models.Document) (string, string, *models.Document) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/grade":
		if arg == "" {
			color.Yellow("Usage: /grade <n>")
			return grade, subject, file
		}
		color.Yellow("Grade set to %s", arg)
		return arg, subject, file
	case "/subject":
		if arg == "" {
			color.Yellow("Usage: /subject <name>")
			return grade, subject, file
		}
		color.Yellow("Subject set to %s (%s)", arg, models.DetectLanguage(arg))
		return grade, arg, file
	case "/file":
		if arg == "" {
			color.Yellow("File detached")
			return grade, subject, nil
		}
		doc, err := readUpload(arg)
		if err != nil {
			color.Red("Error: %v", err)
			return grade, subject, file
		}
		color.Yellow("Attached %s", doc.Filename)
		return grade, subject, doc
	}

	color.Yellow("Unknown command %s", name)
	return grade, subject, file
}

func readUpload(path string) (*models.Document, error) {
	if path == "" {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &models.Document{Filename: filepath.Base(path), Content: content}, nil
}

func formatAnswer(response *models.Response, showSources bool) string {
	var sb strings.Builder

	sb.WriteString(response.Answer)

	if showSources && len(response.Sources) > 0 {
		sb.WriteString("\n\nSources:\n")
		for i, source := range response.Sources {
			name := source.Metadata.Source
			if name == "" {
				name = "N/A"
			}
			sb.WriteString(fmt.Sprintf("  %d. [%s, page %d, distance %.3f]\n",
				i+1, name, source.Metadata.Page, source.Distance))
		}
	}

	return sb.String()
}
