package email

// Provider names accepted by EMAIL_PROVIDER.
const (
	ProviderPostmark = "postmark"
	ProviderSMTP     = "smtp"
	ProviderDev      = "dev"
)

type Config struct {
	Provider     string `env:"EMAIL_PROVIDER" envDefault:"dev"`
	SenderEmail  string `env:"SENDER_EMAIL,required"`
	SenderName   string `env:"SENDER_NAME" envDefault:"Prytaneum"`
	SupportEmail string `env:"SUPPORT_EMAIL"`

	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	PostmarkStream       string `env:"POSTMARK_MESSAGE_STREAM" envDefault:"broadcast"`

	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	SMTPBatchSize int    `env:"SMTP_BATCH_SIZE" envDefault:"1000"`

	DevDir string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}
