// Package validator checks request fields with composable rules.
//
// Each rule captures its value and reports a ValidationError when its check
// fails. Apply runs all of them so a caller sees every problem at once:
//
//	err := validator.Apply(
//		validator.Required("region", req.Region),
//		validator.ValidEmail("email", req.Email),
//	)
//	if ve := validator.ExtractValidationErrors(err); ve != nil {
//		// ve.Get("email")
//	}
package validator
