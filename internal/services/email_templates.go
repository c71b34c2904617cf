package services

// verificationEmailHTML takes: heading, body text, code, year.
const verificationEmailHTML = `<!DOCTYPE html>
<html>
<head>
<style>
body { font-family: Georgia, "Times New Roman", serif; line-height: 1.6; color: #1c1917; background-color: #f5f5f4; margin: 0; padding: 20px; }
.container { padding: 20px; max-width: 560px; margin: 20px auto; background-color: #ffffff; border-top: 4px solid #b45309; }
.header { font-size: 22px; font-weight: bold; color: #78350f; margin-bottom: 10px; }
.content { padding: 24px; text-align: center; }
.code { font-family: "Courier New", monospace; font-size: 34px; font-weight: bold; letter-spacing: 10px; color: #78350f; background-color: #fef3c7; padding: 14px 18px; display: inline-block; margin: 16px 0; }
.footer { margin-top: 16px; font-size: 12px; color: #78716c; text-align: center; }
</style>
</head>
<body>
  <div class="container">
    <div class="header">%s</div>
    <div class="content">
      <p>%s</p>
      <div class="code">%s</div>
    </div>
    <div class="footer">
      &copy; %d 2nd Opinion Construction
    </div>
  </div>
</body>
</html>`
