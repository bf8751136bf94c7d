package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// LLMModelName is the GenAI model to use for a call.
type LLMModelName int32

const (
	Pro25 LLMModelName = iota
	Flash25
	FlashLite25
	Flash20
	Flash25Image
)

// The Stringer interface for LLMModelName.
func (t LLMModelName) String() string {
	switch t {
	case Pro25:
		return "gemini-2.5-pro"
	case Flash25:
		return "gemini-2.5-flash"
	case FlashLite25:
		return "gemini-2.5-flash-lite-preview-06-17"
	case Flash25Image:
		return "gemini-2.5-flash-image-preview"
	case Flash20:
		return "gemini-2.0-flash"
	default:
		return "gemini-2.0-flash"
	}
}

func floatPointer(f float32) *float32 {
	return &f
}

type ModerationResult struct {
	IsValid bool   `json:"is_valid_fashion_image"`
	Reason  string `json:"rejection_reason"`
}

// Angle is one of the four stored outfit views.
type Angle string

const (
	AngleFront Angle = "Front"
	AngleRight Angle = "Right"
	AngleBack  Angle = "Back"
	AngleLeft  Angle = "Left"
)

// AllAngles is the canonical generation order. Right, Back and Left are
// derived from the Front result.
var AllAngles = []Angle{AngleFront, AngleRight, AngleBack, AngleLeft}

// ImageServiceProvider is the capability contract with the image provider.
// Implementations translate provider failures into the sentinel errors of
// this package where they apply.
type ImageServiceProvider interface {
	IsConfigured() bool
	ModerateImage(ctx context.Context, image []byte, mimeType string) (*ModerationResult, error)
	GenerateFrontView(ctx context.Context, image []byte, mimeType string) ([]byte, error)
	GenerateAngleView(ctx context.Context, frontView []byte, angle Angle) ([]byte, error)
	CategorizeOutfit(ctx context.Context, frontView []byte) (string, error)
	DescribeOutfit(ctx context.Context, frontView []byte, category, styleSignature, userName string) (string, error)
	DressAvatar(ctx context.Context, avatar []byte, outfit []byte) ([]byte, error)
	FindDuplicate(ctx context.Context, newImage []byte, existing [][]byte) (int, error)
}

type GoogleImageService struct{}

// IsConfigured reports whether the provider has credentials to work with.
// Callers check this before a flow starts so a missing key surfaces as
// ErrServiceUnavailable instead of a raw SDK auth error mid-pipeline.
func (GoogleImageService) IsConfigured() bool {
	return os.Getenv("GOOGLE_API_KEY") != ""
}

func newGenaiClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %v", err)
	}
	return client, nil
}

// asProviderError folds raw provider failures into the sentinel errors.
// Quota detection is by message, the SDK does not type these.
func asProviderError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "resource_exhausted") {
		return ErrQuotaExceeded
	}
	if strings.Contains(msg, "unavailable") || strings.Contains(msg, "overloaded") {
		return ErrServiceUnavailable
	}
	return err
}

func inlinePart(data []byte, mimeType string) *genai.Part {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}
}

func GetAllInlineImages(result *genai.GenerateContentResponse) ([][]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("empty response")
	}

	var allImageData [][]byte

	for _, cand := range result.Candidates {
		for _, rating := range cand.SafetyRatings {
			if rating.Blocked {
				return nil, fmt.Errorf("content blocked by safety setting: %s", rating.Category)
			}
		}
		if cand.Content == nil || len(cand.Content.Parts) == 0 {
			continue
		}

		for _, part := range cand.Content.Parts {
			inlineData := part.InlineData
			if inlineData != nil && strings.HasPrefix(inlineData.MIMEType, "image/") && len(inlineData.Data) > 0 {
				allImageData = append(allImageData, inlineData.Data)
			}
		}
	}

	return allImageData, nil
}

// generateImage runs an image-out prompt and returns the first rendered image.
func (GoogleImageService) generateImage(ctx context.Context, parts []*genai.Part, label string) ([]byte, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.Models.GenerateContent(ctx, Flash25Image.String(), []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		CandidateCount:  1,
		MaxOutputTokens: 50000,
		Temperature:     floatPointer(1),
	})
	if err != nil {
		fmt.Printf("[Gemini] %s GenerateContent error: %v\n", label, err)
		return nil, asProviderError(err)
	}
	if result.PromptFeedback != nil {
		fmt.Println(result.PromptFeedback.BlockReason)
		fmt.Println(result.PromptFeedback.BlockReasonMessage)
		return nil, fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}

	images, err := GetAllInlineImages(result)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		fmt.Printf("[Gemini] %s returned no image, text: %s\n", label, result.Text())
		return nil, ErrGenerationFailed
	}
	return images[0], nil
}

// generateText runs a text-out prompt.
func (GoogleImageService) generateText(ctx context.Context, parts []*genai.Part, config *genai.GenerateContentConfig, label string) (string, error) {
	client, err := newGenaiClient(ctx)
	if err != nil {
		return "", err
	}
	result, err := client.Models.GenerateContent(ctx, Flash25.String(), []*genai.Content{{Parts: parts}}, config)
	if err != nil {
		fmt.Printf("[Gemini] %s GenerateContent error: %v\n", label, err)
		return "", asProviderError(err)
	}
	if result.PromptFeedback != nil {
		return "", fmt.Errorf("content violation: %s", result.PromptFeedback.BlockReasonMessage)
	}
	return strings.TrimSpace(result.Text()), nil
}

func (g GoogleImageService) ModerateImage(ctx context.Context, image []byte, mimeType string) (*ModerationResult, error) {
	parts := []*genai.Part{
		inlinePart(image, mimeType),
		{Text: `Analyze the image for a fashion app. The image is valid if it meets two main criteria: 1. It must feature a person. 2. The person must not be completely nude. Modern swimwear, like bikinis, and other revealing but common clothing are perfectly acceptable. The presence of any text or logos on clothing is irrelevant and should be ignored for moderation purposes. Images of only objects, animals, or landscapes are invalid. Provide a JSON response based on these rules.`},
	}
	raw, err := g.generateText(ctx, parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: "object",
			Properties: map[string]*genai.Schema{
				"is_valid_fashion_image": {Type: "boolean"},
				"rejection_reason":       {Type: "string"},
			},
			Required: []string{"is_valid_fashion_image", "rejection_reason"},
		},
	}, "moderation")
	if err != nil {
		return nil, err
	}

	var parsed ModerationResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Printf("[Gemini] failed to parse moderation response: %v raw: %s\n", err, raw)
		return nil, fmt.Errorf("failed to parse moderation response: %v", err)
	}
	if !parsed.IsValid && parsed.Reason == "" {
		parsed.Reason = "The image is not suitable. Please try another."
	}
	return &parsed, nil
}

func (g GoogleImageService) detectGender(ctx context.Context, image []byte, mimeType string) string {
	parts := []*genai.Part{
		inlinePart(image, mimeType),
		{Text: "Analyze the person in the image. Is the person male or female? Respond with only the word 'Male' or 'Female'."},
	}
	raw, err := g.generateText(ctx, parts, nil, "gender detection")
	if err != nil {
		fmt.Println("[Gemini] gender detection failed:", err)
		return "Unknown"
	}
	switch strings.ToLower(raw) {
	case "male":
		return "Male"
	case "female":
		return "Female"
	}
	return "Unknown"
}

func (g GoogleImageService) GenerateFrontView(ctx context.Context, image []byte, mimeType string) ([]byte, error) {
	pose := "standing facing directly forward"
	switch g.detectGender(ctx, image, mimeType) {
	case "Male":
		pose = "standing facing directly forward, with arms crossed confidently over their chest"
	case "Female":
		pose = "standing facing directly forward, with hands gently clasped together in front of them"
	}

	prompt := fmt.Sprintf(`Analyze the input image. If the person is cropped or only partially visible (e.g., half-body), you MUST generate a complete, photorealistic, full-body figure by seamlessly extrapolating the missing parts, including legs and feet.

**Primary Task:** Create a photorealistic, full-body studio photograph of the person.

**Key Instructions:**
1.  **Full Body Generation:** Complete any partial images into a full-body view.
2.  **Standard Pose:** Re-pose the person to be %s.
3.  **Studio Background:** Place the person against a clean, minimalist, off-white studio background.
4.  **No Alterations:** Do NOT change the person's clothing, accessories, hairstyle, or physical appearance. Preserve their identity and style exactly as shown. This is critically important: any text, logos, or graphics on the clothing must be preserved without any changes or objections.
5.  **Output:** Return only the final image. No text, descriptions, or commentary.`, pose)

	return g.generateImage(ctx, []*genai.Part{inlinePart(image, mimeType), {Text: prompt}}, "front view")
}

func (g GoogleImageService) GenerateAngleView(ctx context.Context, frontView []byte, angle Angle) ([]byte, error) {
	var viewDescription string
	switch angle {
	case AngleBack:
		viewDescription = "the person's back, as if they have turned 180 degrees away from the camera."
	case AngleRight:
		viewDescription = "the person's right side. Imagine the person in the image turns 90 degrees to THEIR right. Show their right profile."
	case AngleLeft:
		viewDescription = "the person's left side. Imagine the person in the image turns 90 degrees to THEIR left. Show their left profile."
	default:
		return nil, fmt.Errorf("angle %s is not derived from the front view", angle)
	}

	prompt := fmt.Sprintf(`From the provided front-view image, generate a new image showing %s

**Critical Rules:**
1.  **Correct Angle:** The generated view MUST be the correct angle as described above. The person's left and right sides are distinct and must be rendered correctly. For example, if the person has a watch on their left wrist, it should only be visible in the 'Front' and 'Left' views, and not in the 'Right' view.
2.  **Identity Preservation:** DO NOT CHANGE the person's appearance, clothing, accessories, or hairstyle. Everything must be identical, just viewed from a different angle. This includes text and logos on clothing.
3.  **Consistent Background:** Use the same clean, minimalist, off-white studio background.
4.  **Image Only:** Output ONLY the image. No text or other content.`, viewDescription)

	return g.generateImage(ctx, []*genai.Part{inlinePart(frontView, "image/png"), {Text: prompt}}, string(angle)+" view")
}

func (g GoogleImageService) CategorizeOutfit(ctx context.Context, frontView []byte) (string, error) {
	parts := []*genai.Part{
		inlinePart(frontView, "image/png"),
		{Text: `Analyze the outfit in the image. Categorize it into one of the following: CASUAL, FORMAL, PARTY, ETHNIC. Respond with only one of these category names.`},
	}
	raw, err := g.generateText(ctx, parts, nil, "categorization")
	if err != nil {
		return "", err
	}
	return strings.ToUpper(raw), nil
}

func (g GoogleImageService) DescribeOutfit(ctx context.Context, frontView []byte, category, styleSignature, userName string) (string, error) {
	prompt := fmt.Sprintf(`You are AVA, a friendly and sharp AI stylist. Analyze the provided %s outfit. The user's name is %s and their style signature is "%s".
Provide 1-2 sentences of concise, actionable, and encouraging styling advice.
For example, suggest accessories, footwear, or occasions where this outfit would be perfect. Your tone should be positive and helpful.`, category, userName, styleSignature)

	return g.generateText(ctx, []*genai.Part{inlinePart(frontView, "image/png"), {Text: prompt}}, nil, "description")
}

func (g GoogleImageService) DressAvatar(ctx context.Context, avatar []byte, outfit []byte) ([]byte, error) {
	parts := []*genai.Part{
		inlinePart(avatar, "image/png"),
		inlinePart(outfit, "image/png"),
		{Text: `Take the person from the first image (the avatar) and dress them in the complete outfit from the second image. The final output should be a photorealistic image of the avatar wearing the new outfit, maintaining the avatar's face, hair, and pose. The background should be a clean studio white.`},
	}
	return g.generateImage(ctx, parts, "avatar dressing")
}

// FindDuplicate returns the index of the first visually identical outfit in
// existing, or -1 when there is none. Non-quota failures fail open.
func (g GoogleImageService) FindDuplicate(ctx context.Context, newImage []byte, existing [][]byte) (int, error) {
	if len(existing) == 0 {
		return -1, nil
	}
	parts := []*genai.Part{inlinePart(newImage, "image/png")}
	for _, img := range existing {
		parts = append(parts, inlinePart(img, "image/png"))
	}
	parts = append(parts, &genai.Part{Text: `Analyze the set of images. The first image is the 'new image'. All subsequent images are the 'existing images'. Compare the 'new image' to each of the 'existing images'. Determine if the 'new image' is a visual duplicate of any of the 'existing images'. A duplicate is defined as the same person wearing the exact same clothing.

Return a JSON response. If a duplicate is found, provide the 0-based index of the FIRST matching image in the 'existing images' list. If no duplicates are found, the index should be null.`})

	raw, err := g.generateText(ctx, parts, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: "object",
			Properties: map[string]*genai.Schema{
				"match_index": {Type: "integer", Nullable: genai.Ptr(true)},
			},
			Required: []string{"match_index"},
		},
	}, "duplicate check")
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return -1, err
		}
		fmt.Println("[Gemini] duplicate check failed open:", err)
		return -1, nil
	}

	var parsed struct {
		MatchIndex *int `json:"match_index"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fmt.Printf("[Gemini] failed to parse duplicate check response: %v raw: %s\n", err, raw)
		return -1, nil
	}
	if parsed.MatchIndex != nil && *parsed.MatchIndex >= 0 && *parsed.MatchIndex < len(existing) {
		return *parsed.MatchIndex, nil
	}
	return -1, nil
}
