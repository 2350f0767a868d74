package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Dipuraj1New/careerireland-portals/internal/domain"
)

var (
	submitFormID     string
	submitPortalType string
	submitID         string
	submitUserID     string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Run a single portal submission attempt and exit.",
	Long: `Runs one automation attempt synchronously. Either re-attempts an existing
portal submission (--submission) or creates a new one for a form (--form plus
--portal). Intended for operators replaying a stuck case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (submitID == "") == (submitFormID == "") {
			return fmt.Errorf("exactly one of --submission or --form must be set")
		}

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		id := submitID
		if id == "" {
			portalType, err := domain.ParsePortalTypeFromString(submitPortalType)
			if err != nil {
				return err
			}
			sub, err := a.submissions.Create(ctx, submitFormID, portalType)
			if err != nil {
				return fmt.Errorf("failed to create portal submission: %w", err)
			}
			id = sub.ID
		}

		result, err := a.orchestrator.SubmitFormToPortal(ctx, id, submitUserID)
		if err != nil {
			return err
		}
		if !result.Success {
			a.logger.Warn("Submission attempt failed.",
				zap.String("submission_id", id),
				zap.String("error", result.ErrorMessage))
			return fmt.Errorf("submission attempt failed: %s", result.ErrorMessage)
		}

		a.logger.Info("Submission attempt succeeded.",
			zap.String("submission_id", id),
			zap.String("status", result.Status.String()),
			zap.String("confirmation_number", result.ConfirmationNumber))
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitID, "submission", "", "existing portal submission id to re-attempt")
	submitCmd.Flags().StringVar(&submitFormID, "form", "", "form submission id to create a portal submission for")
	submitCmd.Flags().StringVar(&submitPortalType, "portal", "", "portal type (IMMIGRATION, VISA, REGISTRATION_BUREAU, EMPLOYMENT_PERMIT)")
	submitCmd.Flags().StringVar(&submitUserID, "user", "", "user id recorded on audit events and notifications")
	rootCmd.AddCommand(submitCmd)
}
